package admission_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"inference-gateway/admission"
	"inference-gateway/computeclient"
	"inference-gateway/ledger"
	"inference-gateway/ledgerstore"
	"inference-gateway/liquidity"
	"inference-gateway/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The concurrency tests here log heavily; silence the default logger for the
// whole package run.
func TestMain(m *testing.M) {
	result, _ := logging.WithNoopLogger(func() (any, error) {
		return m.Run(), nil
	})
	os.Exit(result.(int))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// halfCoinQuery prices out to exactly 0.5 under the qwen2.5-7b rates, which
// keeps the settlement arithmetic in these tests easy to follow.
func halfCoinQuery() string {
	return strings.Repeat("a", 19948)
}

type fixture struct {
	ledger *ledger.Ledger
	client *computeclient.MockClient
	queue  *admission.Queue
}

func newFixture(t *testing.T, opts admission.Options) *fixture {
	t.Helper()

	l := ledger.NewLedger(ledgerstore.NewMemoryStore())
	client := computeclient.NewMockClient()
	client.LedgerBalance = dec("100")

	// Threshold zero keeps the refill path quiet unless a test arms it.
	manager := liquidity.NewManager(client, "pool", dec("100"), decimal.Zero, dec("50"))

	if opts.DrainInterval == 0 {
		opts.DrainInterval = 10 * time.Millisecond
	}
	queue := admission.NewQueue(l, manager, client, opts)
	t.Cleanup(queue.Stop)

	return &fixture{ledger: l, client: client, queue: queue}
}

func (f *fixture) fund(t *testing.T, address, amount string) {
	t.Helper()
	_, err := f.ledger.Credit(address, dec(amount), "manual funding", "")
	require.NoError(t, err)
}

func waitResult(t *testing.T, ch <-chan admission.TaskResult) admission.TaskResult {
	t.Helper()
	select {
	case result := <-ch:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return admission.TaskResult{}
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, admission.Options{DefaultModel: "qwen2.5-7b"})

	_, err := f.queue.Submit("", "hello", "")
	assert.ErrorIs(t, err, admission.ErrValidation)

	_, err = f.queue.Submit("not a valid address!", "hello", "")
	assert.ErrorIs(t, err, admission.ErrValidation)

	_, err = f.queue.Submit("alice", "   ", "")
	assert.ErrorIs(t, err, admission.ErrValidation)
}

func TestSubmitWithoutModelOrDefault(t *testing.T) {
	f := newFixture(t, admission.Options{})

	_, err := f.queue.Submit("alice", "hello", "")
	assert.ErrorIs(t, err, admission.ErrValidation)
}

func TestSubmitAfterStop(t *testing.T) {
	f := newFixture(t, admission.Options{DefaultModel: "qwen2.5-7b"})
	f.queue.Stop()

	_, err := f.queue.Submit("alice", "hello", "")
	assert.ErrorIs(t, err, admission.ErrQueueStopped)
}

func TestModelNotFoundDoesNotCharge(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "10")

	ch, err := f.queue.Submit("alice", "hello", "no-such-model")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, admission.ErrModelNotFound)

	var modelNotFound *admission.ModelNotFoundError
	require.ErrorAs(t, result.Err, &modelNotFound)
	assert.Equal(t, "no-such-model", modelNotFound.Requested)
	assert.Contains(t, modelNotFound.Available, "qwen2.5-7b")

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("10")))
}

func TestStaticFallbackProvider(t *testing.T) {
	f := newFixture(t, admission.Options{
		FallbackProviders: []computeclient.Provider{
			{Address: "static-1", Url: "http://static-1:8080", Models: []string{"llama3.1-8b"}},
		},
	})
	f.fund(t, "alice", "10")

	ch, err := f.queue.Submit("alice", "hello", "llama3.1-8b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.NoError(t, result.Err)
	assert.Equal(t, "llama3.1-8b", f.client.LastDispatchModel)
}

func TestInsufficientFundsRejected(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "0.01")

	// The half-coin query needs a 0.5 reservation against a 0.01 balance.
	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.Error(t, result.Err)

	var insufficientFunds *ledger.InsufficientFundsError
	require.ErrorAs(t, result.Err, &insufficientFunds)
	assert.True(t, insufficientFunds.Required.Equal(dec("0.5")))
	assert.True(t, insufficientFunds.Available.Equal(dec("0.01")))

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.01")))
}

func TestCheaperThanEstimateRefundsDifference(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "1.0")

	// Balance reads: refill check, pre-dispatch, post-dispatch.
	// Pool drops 0.3 across the call while 0.5 was reserved, so 0.2 comes
	// back and the account ends at exactly 1.0 minus the actual cost.
	f.client.BalanceQueue = []decimal.Decimal{dec("100"), dec("100"), dec("99.7")}

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.NoError(t, result.Err)
	assert.NoError(t, result.ReconciliationErr)
	assert.True(t, result.Cost.Equal(dec("0.3")), "cost %s", result.Cost)

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.7")), "balance %s", balance)

	entries, err := f.ledger.History("alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EntryDeposit, entries[0].Kind)
	assert.Contains(t, entries[0].Description, "refund for")
	assert.True(t, entries[0].Amount.Equal(dec("0.2")))
	assert.Equal(t, ledger.EntryCharge, entries[1].Kind)
	assert.Contains(t, entries[1].Description, "reservation for")
}

func TestCostlierThanEstimateChargesDifference(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "1.0")

	// Pool drops 0.6 while only 0.5 was reserved.
	f.client.BalanceQueue = []decimal.Decimal{dec("100"), dec("100"), dec("99.4")}

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.NoError(t, result.Err)
	assert.NoError(t, result.ReconciliationErr)
	assert.True(t, result.Cost.Equal(dec("0.6")), "cost %s", result.Cost)

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.4")), "balance %s", balance)
}

func TestBalanceReadFailureBillsAtEstimate(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "1.0")
	f.client.BalanceError = assert.AnError

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.NoError(t, result.Err)
	assert.True(t, result.Cost.Equal(dec("0.5")), "cost %s", result.Cost)

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.5")), "balance %s", balance)
}

func TestDispatchErrorReleasesReservation(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "1.0")
	f.client.DispatchError = assert.AnError

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, admission.ErrUpstreamDispatch)

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1.0")), "balance %s", balance)

	entries, err := f.ledger.History("alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Contains(t, entries[0].Description, "release for")
}

func TestDispatchTimeoutKeepsReservation(t *testing.T) {
	f := newFixture(t, admission.Options{
		DispatchTimeout: 50 * time.Millisecond,
	})
	f.fund(t, "alice", "1.0")
	f.client.DispatchDelay = 500 * time.Millisecond

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, admission.ErrDispatchTimeout)

	// The upstream call may still be metering, so the estimate stays charged.
	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.5")), "balance %s", balance)
}

// Same timeout policy, but through the real HTTP client instead of the mock:
// the deadline cause must survive the client's error wrapping so the queue
// still classifies the failure as a dispatch timeout.
func TestDispatchTimeoutOverHttpKeepsReservation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"response": "late"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	l := ledger.NewLedger(ledgerstore.NewMemoryStore())
	client := computeclient.NewClient(server.URL, 5*time.Second)
	manager := liquidity.NewManager(client, "pool", dec("100"), decimal.Zero, dec("50"))
	queue := admission.NewQueue(l, manager, client, admission.Options{
		DrainInterval:   10 * time.Millisecond,
		DispatchTimeout: 50 * time.Millisecond,
		FallbackProviders: []computeclient.Provider{
			{Address: "static-1", Url: server.URL, Models: []string{"qwen2.5-7b"}},
		},
	})
	t.Cleanup(queue.Stop)

	_, err := l.Credit("alice", dec("1.0"), "manual funding", "")
	require.NoError(t, err)

	ch, err := queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, admission.ErrDispatchTimeout)

	balance, err := l.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.5")), "balance %s", balance)
}

func TestStopFailsQueuedTasks(t *testing.T) {
	// A drain interval of an hour keeps both tasks queued until Stop runs.
	f := newFixture(t, admission.Options{DrainInterval: time.Hour, DefaultModel: "qwen2.5-7b"})
	f.fund(t, "alice", "10")
	f.fund(t, "bob", "10")

	aliceCh, err := f.queue.Submit("alice", "hello", "")
	require.NoError(t, err)
	bobCh, err := f.queue.Submit("bob", "hello", "")
	require.NoError(t, err)

	f.queue.Stop()

	result := waitResult(t, aliceCh)
	assert.ErrorIs(t, result.Err, admission.ErrQueueStopped)
	result = waitResult(t, bobCh)
	assert.ErrorIs(t, result.Err, admission.ErrQueueStopped)
}

func TestReconciliationFailureStillDeliversResponse(t *testing.T) {
	f := newFixture(t, admission.Options{})
	f.fund(t, "alice", "0.5")

	// Actual exceeds the estimate by more than the remaining balance, so the
	// adjustment debit cannot be covered.
	f.client.BalanceQueue = []decimal.Decimal{dec("100"), dec("100"), dec("99.3")}

	ch, err := f.queue.Submit("alice", halfCoinQuery(), "qwen2.5-7b")
	require.NoError(t, err)

	result := waitResult(t, ch)
	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Response)
	require.Error(t, result.ReconciliationErr)
	assert.ErrorIs(t, result.ReconciliationErr, admission.ErrReconciliation)

	balance, err := f.ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance %s", balance)
}

func TestConcurrencyBoundHeld(t *testing.T) {
	const maxConcurrent = 2
	f := newFixture(t, admission.Options{MaxConcurrent: maxConcurrent})
	f.fund(t, "alice", "100")
	f.client.DispatchDelay = 100 * time.Millisecond

	const total = 6
	channels := make([]<-chan admission.TaskResult, total)
	for i := 0; i < total; i++ {
		ch, err := f.queue.Submit("alice", "hello", "qwen2.5-7b")
		require.NoError(t, err)
		channels[i] = ch
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			waitResult(t, ch)
		}
	}()

	maxObserved := 0
	for {
		select {
		case <-done:
			assert.LessOrEqual(t, maxObserved, maxConcurrent)
			assert.Greater(t, maxObserved, 0)
			return
		case <-time.After(5 * time.Millisecond):
			status := f.queue.GetQueueStatus()
			assert.LessOrEqual(t, status.ActiveQueries, maxConcurrent)
			if status.ActiveQueries > maxObserved {
				maxObserved = status.ActiveQueries
			}
		}
	}
}

func TestQueueStatusReportsConfiguredLimit(t *testing.T) {
	f := newFixture(t, admission.Options{MaxConcurrent: 3})

	status := f.queue.GetQueueStatus()
	assert.Equal(t, 3, status.MaxConcurrent)
	assert.Equal(t, 0, status.QueueLength)
	assert.Equal(t, 0, status.ActiveQueries)
}
