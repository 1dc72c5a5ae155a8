package ledger

import (
	"errors"
	"sync"
	"time"

	"inference-gateway/logging"

	"github.com/shopspring/decimal"
)

// Ledger is the authoritative record of each account's prepaid balance and
// transaction history. It is a thin atomic-mutation facade over a Store:
// every balance change runs under a per-address lock, so two tasks for the
// same account can never interleave a stale read into a write. Different
// addresses proceed fully in parallel.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockAddress acquires the mutex for one address, creating it on first use.
// Returns the unlock func so callers can defer it.
func (l *Ledger) lockAddress(address string) func() {
	l.mu.Lock()
	m, ok := l.locks[address]
	if !ok {
		m = &sync.Mutex{}
		l.locks[address] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// GetBalance returns the current balance, or ErrAccountNotFound.
func (l *Ledger) GetBalance(address string) (decimal.Decimal, error) {
	account, err := l.store.GetAccount(NormalizeAddress(address))
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Debit atomically subtracts amount from the account and appends a charge
// entry. Fails with an InsufficientFundsError when the balance cannot cover
// the amount; an account that was never funded counts as a zero balance.
func (l *Ledger) Debit(address string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	addr := NormalizeAddress(address)

	unlock := l.lockAddress(addr)
	defer unlock()

	account, err := l.store.GetAccount(addr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return decimal.Zero, &InsufficientFundsError{Address: addr, Required: amount, Available: decimal.Zero}
		}
		return decimal.Zero, err
	}

	if amount.GreaterThan(account.Balance) {
		return decimal.Zero, &InsufficientFundsError{Address: addr, Required: amount, Available: account.Balance}
	}

	previous := account.Balance
	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now().UTC()
	if err := l.store.PutAccount(account); err != nil {
		return decimal.Zero, err
	}

	if _, err := l.store.AppendEntry(&Entry{
		Address:     addr,
		Kind:        EntryCharge,
		Amount:      amount,
		Description: description,
		CreatedAt:   account.UpdatedAt,
	}); err != nil {
		l.restoreBalance(account, previous)
		return decimal.Zero, err
	}

	logging.Debug("Debited account", logging.Ledger,
		"address", addr, "amount", amount.String(), "balance", account.Balance.String())
	return account.Balance, nil
}

// Credit atomically adds amount to the account and appends a deposit entry,
// creating the account on first credit. When externalReference is non-empty
// and an entry with the same reference already exists, the credit is a no-op:
// replayed deposit notifications must not double-credit.
func (l *Ledger) Credit(address string, amount decimal.Decimal, description, externalReference string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	addr := NormalizeAddress(address)

	unlock := l.lockAddress(addr)
	defer unlock()

	if externalReference != "" {
		seen, err := l.store.SeenReference(externalReference)
		if err != nil {
			return decimal.Zero, err
		}
		if seen {
			logging.Info("Skipping duplicate credit", logging.Ledger,
				"address", addr, "reference", externalReference)
			account, err := l.store.GetAccount(addr)
			if err != nil {
				return decimal.Zero, err
			}
			return account.Balance, nil
		}
	}

	now := time.Now().UTC()
	account, err := l.store.GetAccount(addr)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return decimal.Zero, err
		}
		account = &Account{Address: addr, Balance: decimal.Zero, CreatedAt: now}
	}

	previous := account.Balance
	account.Balance = account.Balance.Add(amount)
	account.UpdatedAt = now
	if err := l.store.PutAccount(account); err != nil {
		return decimal.Zero, err
	}

	if _, err := l.store.AppendEntry(&Entry{
		Address:           addr,
		Kind:              EntryDeposit,
		Amount:            amount,
		Description:       description,
		ExternalReference: externalReference,
		CreatedAt:         now,
	}); err != nil {
		l.restoreBalance(account, previous)
		return decimal.Zero, err
	}

	logging.Debug("Credited account", logging.Ledger,
		"address", addr, "amount", amount.String(), "balance", account.Balance.String())
	return account.Balance, nil
}

// Withdraw moves funds out of an account for a manual payout. Same funds
// check as Debit, but the entry is recorded as a withdrawal rather than a
// charge so the audit trail separates payouts from metered usage.
func (l *Ledger) Withdraw(address string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	addr := NormalizeAddress(address)

	unlock := l.lockAddress(addr)
	defer unlock()

	account, err := l.store.GetAccount(addr)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(account.Balance) {
		return decimal.Zero, &InsufficientFundsError{Address: addr, Required: amount, Available: account.Balance}
	}

	previous := account.Balance
	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now().UTC()
	if err := l.store.PutAccount(account); err != nil {
		return decimal.Zero, err
	}

	if _, err := l.store.AppendEntry(&Entry{
		Address:     addr,
		Kind:        EntryWithdrawal,
		Amount:      amount,
		Description: description,
		CreatedAt:   account.UpdatedAt,
	}); err != nil {
		l.restoreBalance(account, previous)
		return decimal.Zero, err
	}

	logging.Info("Withdrawal", logging.Ledger,
		"address", addr, "amount", amount.String(), "balance", account.Balance.String())
	return account.Balance, nil
}

// restoreBalance is the compensation path for a failed entry append: the
// balance mutation already persisted, so the previous amount is written back.
// A balance change without its matching log entry must not survive. Runs under
// the caller's address lock.
func (l *Ledger) restoreBalance(account *Account, previous decimal.Decimal) {
	account.Balance = previous
	account.UpdatedAt = time.Now().UTC()
	if err := l.store.PutAccount(account); err != nil {
		logging.Error("Failed to restore balance after entry append error", logging.Ledger,
			"address", account.Address, "balance", previous.String(), "error", err)
	}
}

// History returns the account's entries, newest first.
func (l *Ledger) History(address string, limit, offset int) ([]Entry, error) {
	return l.store.ListEntries(NormalizeAddress(address), limit, offset)
}
