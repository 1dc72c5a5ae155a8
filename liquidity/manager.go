// Package liquidity keeps the shared upstream account, the pool the compute
// network actually bills, solvent.
package liquidity

import (
	"context"
	"sync/atomic"

	"inference-gateway/computeclient"
	"inference-gateway/logging"

	"github.com/shopspring/decimal"
)

// Manager owns the single shared liquidity pool. At most one refill is in
// flight at any time; refillInProgress is the mutual-exclusion primitive.
type Manager struct {
	client      computeclient.ComputeClient
	poolAddress string

	initialAmount   decimal.Decimal
	refillThreshold decimal.Decimal
	refillAmount    decimal.Decimal

	refillInProgress atomic.Bool
}

func NewManager(client computeclient.ComputeClient, poolAddress string, initialAmount, refillThreshold, refillAmount decimal.Decimal) *Manager {
	return &Manager{
		client:          client,
		poolAddress:     poolAddress,
		initialAmount:   initialAmount,
		refillThreshold: refillThreshold,
		refillAmount:    refillAmount,
	}
}

func (m *Manager) PoolAddress() string {
	return m.poolAddress
}

// EnsureLedgerExists provisions the upstream ledger account with the
// configured initial amount. Idempotent; called once at startup.
func (m *Manager) EnsureLedgerExists(ctx context.Context) error {
	exists, err := m.client.LedgerAccountExists(ctx, m.poolAddress)
	if err != nil {
		return err
	}
	if exists {
		logging.Debug("Upstream ledger account already exists", logging.Liquidity, "address", m.poolAddress)
		return nil
	}

	logging.Info("Creating upstream ledger account", logging.Liquidity,
		"address", m.poolAddress, "amount", m.initialAmount.String())
	return m.client.CreateLedgerAccount(ctx, m.poolAddress, m.initialAmount)
}

// GetLedgerBalance reads the metered pool balance. May involve a remote call;
// callers should treat it as slow.
func (m *Manager) GetLedgerBalance(ctx context.Context) (decimal.Decimal, error) {
	return m.client.GetLedgerBalance(ctx, m.poolAddress)
}

// CheckAndRefill tops the pool up when it has drained below the threshold.
// If a refill is already in flight the call returns immediately; it never
// waits on another caller's refill. Deposit failures are logged and swallowed
// so the next check can retry; a temporarily low pool must not fail
// already-reserved work.
func (m *Manager) CheckAndRefill(ctx context.Context) {
	if !m.refillInProgress.CompareAndSwap(false, true) {
		logging.Debug("Refill already in progress", logging.Liquidity, "address", m.poolAddress)
		return
	}
	defer m.refillInProgress.Store(false)

	balance, err := m.client.GetLedgerBalance(ctx, m.poolAddress)
	if err != nil {
		logging.Error("Failed to read upstream ledger balance", logging.Liquidity,
			"address", m.poolAddress, "error", err)
		return
	}
	if balance.GreaterThanOrEqual(m.refillThreshold) {
		return
	}

	logging.Info("Upstream balance below threshold, refilling", logging.Liquidity,
		"balance", balance.String(), "threshold", m.refillThreshold.String(),
		"amount", m.refillAmount.String())

	reference, err := m.client.Deposit(ctx, m.poolAddress, m.refillAmount)
	if err != nil {
		logging.Error("Refill deposit failed, will retry on next check", logging.Liquidity,
			"address", m.poolAddress, "error", err)
		return
	}

	logging.Info("Refill deposit submitted", logging.Liquidity,
		"address", m.poolAddress, "reference", reference)
}

// RefillInProgress reports whether a refill is currently in flight.
func (m *Manager) RefillInProgress() bool {
	return m.refillInProgress.Load()
}
