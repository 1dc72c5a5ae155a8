package computeclient

import (
	"context"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"

	"github.com/shopspring/decimal"
)

// MockClient is a mock implementation of ComputeClient for testing
type MockClient struct {
	Mu sync.Mutex

	// State
	Provider          *Provider
	Models            []string
	Result            DispatchResult
	LedgerBalance     decimal.Decimal
	BalanceQueue      []decimal.Decimal // consumed one per GetLedgerBalance call before falling back to LedgerBalance
	AccountExists     bool
	DepositReference  string
	TransfersByHeight map[int64][]Transfer

	// Behavior
	DispatchDelay time.Duration
	BalanceDelay  time.Duration

	// Error injection
	ResolveError  error
	DispatchError error
	BalanceError  error
	DepositError  error
	CreateError   error

	// Call tracking
	ResolveCalled  int
	DispatchCalled int
	BalanceCalled  int
	DepositCalled  int
	CreateCalled   int
	ExistsCalled   int

	// Capture parameters
	LastDispatchModel string
	LastDispatchQuery string
	LastDepositAmount decimal.Decimal
}

// NewMockClient creates a mock with a single provider serving every model.
func NewMockClient() *MockClient {
	return &MockClient{
		Provider: &Provider{
			Address: "provider-1",
			Url:     "http://provider-1:8080",
			Models:  []string{"qwen2.5-7b"},
		},
		Models:            []string{"qwen2.5-7b"},
		Result:            DispatchResult{Response: "ok", ExternalId: "ext-1", Valid: true},
		AccountExists:     true,
		DepositReference:  "deposit-tx-1",
		TransfersByHeight: make(map[int64][]Transfer),
	}
}

func (m *MockClient) ResolveProvider(ctx context.Context, model string) (*Provider, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ResolveCalled++
	if m.ResolveError != nil {
		return nil, m.ResolveError
	}
	for _, served := range m.Provider.Models {
		if served == model {
			return m.Provider, nil
		}
	}
	return nil, sdkerrors.Wrap(ErrNoProvider, model)
}

func (m *MockClient) ListModels(ctx context.Context) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Models, nil
}

func (m *MockClient) Dispatch(ctx context.Context, provider *Provider, model, query string) (*DispatchResult, error) {
	m.Mu.Lock()
	m.DispatchCalled++
	m.LastDispatchModel = model
	m.LastDispatchQuery = query
	delay := m.DispatchDelay
	injected := m.DispatchError
	result := m.Result
	m.Mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if injected != nil {
		return nil, injected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *MockClient) LedgerAccountExists(ctx context.Context, address string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExistsCalled++
	return m.AccountExists, nil
}

func (m *MockClient) CreateLedgerAccount(ctx context.Context, address string, amount decimal.Decimal) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CreateCalled++
	if m.CreateError != nil {
		return m.CreateError
	}
	m.AccountExists = true
	m.LedgerBalance = amount
	return nil
}

func (m *MockClient) GetLedgerBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	m.Mu.Lock()
	delay := m.BalanceDelay
	m.Mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.BalanceCalled++
	if m.BalanceError != nil {
		return decimal.Zero, m.BalanceError
	}
	if len(m.BalanceQueue) > 0 {
		next := m.BalanceQueue[0]
		m.BalanceQueue = m.BalanceQueue[1:]
		return next, nil
	}
	return m.LedgerBalance, nil
}

func (m *MockClient) Deposit(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.DepositCalled++
	m.LastDepositAmount = amount
	if m.DepositError != nil {
		return "", m.DepositError
	}
	m.LedgerBalance = m.LedgerBalance.Add(amount)
	return m.DepositReference, nil
}

func (m *MockClient) BlockTransfers(ctx context.Context, height int64, toAddress string) ([]Transfer, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.TransfersByHeight[height], nil
}

var _ ComputeClient = (*MockClient)(nil)
