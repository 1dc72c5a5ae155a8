package liquidity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"inference-gateway/computeclient"
	"inference-gateway/liquidity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newManager(client *computeclient.MockClient) *liquidity.Manager {
	return liquidity.NewManager(client, "pool", dec("100"), dec("10"), dec("50"))
}

func TestEnsureLedgerExistsCreatesOnce(t *testing.T) {
	client := computeclient.NewMockClient()
	client.AccountExists = false
	manager := newManager(client)

	require.NoError(t, manager.EnsureLedgerExists(context.Background()))
	assert.Equal(t, 1, client.CreateCalled)
	assert.True(t, client.LedgerBalance.Equal(dec("100")))

	// Already provisioned; a second call must not re-create.
	require.NoError(t, manager.EnsureLedgerExists(context.Background()))
	assert.Equal(t, 1, client.CreateCalled)
}

func TestRefillWhenBelowThreshold(t *testing.T) {
	client := computeclient.NewMockClient()
	client.LedgerBalance = dec("5")
	manager := newManager(client)

	manager.CheckAndRefill(context.Background())

	assert.Equal(t, 1, client.DepositCalled)
	assert.True(t, client.LastDepositAmount.Equal(dec("50")))
	assert.True(t, client.LedgerBalance.Equal(dec("55")))
	assert.False(t, manager.RefillInProgress())
}

func TestNoRefillAboveThreshold(t *testing.T) {
	client := computeclient.NewMockClient()
	client.LedgerBalance = dec("10")
	manager := newManager(client)

	manager.CheckAndRefill(context.Background())

	assert.Equal(t, 0, client.DepositCalled)
}

func TestRefillSingleFlight(t *testing.T) {
	client := computeclient.NewMockClient()
	client.LedgerBalance = dec("5")
	client.BalanceDelay = 100 * time.Millisecond
	manager := newManager(client)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.CheckAndRefill(context.Background())
		}()
	}
	wg.Wait()

	// While the first refill was held up on the slow balance read, every
	// other caller had to bail out at the gate.
	assert.Equal(t, 1, client.BalanceCalled)
	assert.Equal(t, 1, client.DepositCalled)
	assert.False(t, manager.RefillInProgress())
}

func TestFailedDepositClearsFlagAndRetries(t *testing.T) {
	client := computeclient.NewMockClient()
	client.LedgerBalance = dec("5")
	client.DepositError = assert.AnError
	manager := newManager(client)

	manager.CheckAndRefill(context.Background())
	assert.Equal(t, 1, client.DepositCalled)
	assert.False(t, manager.RefillInProgress())

	// The flag was released, so the next check attempts the deposit again.
	manager.CheckAndRefill(context.Background())
	assert.Equal(t, 2, client.DepositCalled)
}

func TestFailedBalanceReadClearsFlag(t *testing.T) {
	client := computeclient.NewMockClient()
	client.BalanceError = assert.AnError
	manager := newManager(client)

	manager.CheckAndRefill(context.Background())

	assert.Equal(t, 0, client.DepositCalled)
	assert.False(t, manager.RefillInProgress())
}
