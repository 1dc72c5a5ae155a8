package computeclient

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider is an upstream executor able to serve a given model.
type Provider struct {
	Address string   `json:"address"`
	Url     string   `json:"url"`
	Models  []string `json:"models"`
}

// DispatchResult is what the network returns for a completed query. Valid is
// the network's own verification flag; the gateway passes it through.
type DispatchResult struct {
	Response   string `json:"response"`
	ExternalId string `json:"external_id"`
	Valid      bool   `json:"valid"`
}

// Transfer is an inbound on-chain payment observed in a block.
type Transfer struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// ComputeClient is the gateway's view of the upstream compute network: an
// opaque remote collaborator that resolves providers, executes queries, and
// meters cost against the shared ledger account.
type ComputeClient interface {
	// ResolveProvider returns a provider serving the model, or ErrNoProvider.
	ResolveProvider(ctx context.Context, model string) (*Provider, error)
	// ListModels returns the model identifiers the network currently serves.
	ListModels(ctx context.Context) ([]string, error)

	Dispatch(ctx context.Context, provider *Provider, model, query string) (*DispatchResult, error)

	// Ledger-account operations for the shared liquidity pool.
	LedgerAccountExists(ctx context.Context, address string) (bool, error)
	CreateLedgerAccount(ctx context.Context, address string, amount decimal.Decimal) error
	GetLedgerBalance(ctx context.Context, address string) (decimal.Decimal, error)
	// Deposit tops up the pool and returns the transaction reference.
	Deposit(ctx context.Context, address string, amount decimal.Decimal) (string, error)

	// BlockTransfers lists transfers to the given address in one block.
	BlockTransfers(ctx context.Context, height int64, toAddress string) ([]Transfer, error)
}

// Ensure Client implements ComputeClient
var _ ComputeClient = (*Client)(nil)
