package liquidity

import (
	"context"

	"inference-gateway/logging"

	"github.com/shopspring/decimal"
)

// DepositCallback is invoked for every inbound transfer to the pool address
// so the sender's account can be credited. The reference is the on-chain
// transaction id; the receiver must deduplicate on it, because block
// notifications can arrive twice or out of order.
type DepositCallback func(fromAddress string, amount decimal.Decimal, reference string)

// DepositMonitor bridges the chain's block stream into the ledger: for each
// announced block it queries transfers addressed to the pool and hands them
// to the callback.
type DepositMonitor struct {
	manager  *Manager
	heights  <-chan int64
	callback DepositCallback
}

func NewDepositMonitor(manager *Manager, heights <-chan int64, callback DepositCallback) *DepositMonitor {
	return &DepositMonitor{
		manager:  manager,
		heights:  heights,
		callback: callback,
	}
}

// Run consumes block heights until the context is cancelled or the channel
// closes. A failed block query is logged and skipped; it never stops the
// monitor.
func (m *DepositMonitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case height, ok := <-m.heights:
			if !ok {
				logging.Warn("Block height channel closed, stopping deposit monitor", logging.Liquidity)
				return
			}
			m.processBlock(ctx, height)
		}
	}
}

func (m *DepositMonitor) processBlock(ctx context.Context, height int64) {
	transfers, err := m.manager.client.BlockTransfers(ctx, height, m.manager.poolAddress)
	if err != nil {
		logging.Error("Failed to query block transfers", logging.Liquidity,
			"height", height, "error", err)
		return
	}

	for _, transfer := range transfers {
		if transfer.Reference == "" {
			logging.Warn("Skipping transfer without reference", logging.Liquidity,
				"height", height, "from", transfer.From)
			continue
		}
		logging.Info("Inbound deposit detected", logging.Liquidity,
			"height", height, "from", transfer.From,
			"amount", transfer.Amount.String(), "reference", transfer.Reference)
		m.callback(transfer.From, transfer.Amount, transfer.Reference)
	}
}
