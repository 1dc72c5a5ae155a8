package admission

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"inference-gateway/computeclient"
	"inference-gateway/estimator"
	"inference-gateway/ledger"
	"inference-gateway/liquidity"
	"inference-gateway/logging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tolerance below which an estimate/actual gap is not worth a ledger entry.
var reconcileEpsilon = decimal.RequireFromString("0.000001")

var addressPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,127}$`)

// Options is the queue's tuning surface. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent   int
	DrainInterval   time.Duration
	DispatchTimeout time.Duration
	DefaultModel    string
	// FallbackProviders is the static resolution table consulted when the
	// dynamic provider lookup cannot serve a model.
	FallbackProviders []computeclient.Provider
}

const (
	defaultMaxConcurrent   = 8
	defaultDrainInterval   = 50 * time.Millisecond
	defaultDispatchTimeout = 2 * time.Minute
)

// Queue is the FIFO + bounded worker pool gate between submission and
// execution. For every admitted task it runs the reserve → dispatch →
// reconcile protocol against the ledger and the liquidity manager.
type Queue struct {
	ledger    *ledger.Ledger
	liquidity *liquidity.Manager
	client    computeclient.ComputeClient
	opts      Options

	mu    sync.Mutex
	tasks []*Task

	active  atomic.Int32
	stopped atomic.Bool
	stop    chan struct{}
}

func NewQueue(l *ledger.Ledger, m *liquidity.Manager, client computeclient.ComputeClient, opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = defaultDrainInterval
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}

	q := &Queue{
		ledger:    l,
		liquidity: m,
		client:    client,
		opts:      opts,
		stop:      make(chan struct{}),
	}
	go q.drainLoop()
	return q
}

// Submit validates the submission and enqueues it, returning the task's
// result channel. Validation failures never touch the queue.
func (q *Queue) Submit(address, query, modelHint string) (<-chan TaskResult, error) {
	if q.stopped.Load() {
		return nil, ErrQueueStopped
	}

	addr := ledger.NormalizeAddress(address)
	if !addressPattern.MatchString(addr) {
		return nil, sdkerrors.Wrap(ErrValidation, "malformed requester address")
	}
	if strings.TrimSpace(query) == "" {
		return nil, sdkerrors.Wrap(ErrValidation, "query must not be empty")
	}

	model := modelHint
	if model == "" {
		model = q.opts.DefaultModel
	}
	if model == "" {
		return nil, sdkerrors.Wrap(ErrValidation, "no model requested and no default configured")
	}

	task := &Task{
		Id:          uuid.New().String(),
		Address:     addr,
		Query:       query,
		Model:       model,
		SubmittedAt: time.Now(),
		Response:    make(chan TaskResult, 1),
		state:       TaskQueued,
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	queued := len(q.tasks)
	q.mu.Unlock()

	logging.Debug("Task queued", logging.Admission,
		"task", task.Id, "address", addr, "model", model, "queue_length", queued)
	return task.Response, nil
}

// GetQueueStatus returns a non-blocking snapshot of queue pressure.
func (q *Queue) GetQueueStatus() QueueStatus {
	q.mu.Lock()
	queued := len(q.tasks)
	q.mu.Unlock()

	return QueueStatus{
		QueueLength:   queued,
		ActiveQueries: int(q.active.Load()),
		MaxConcurrent: q.opts.MaxConcurrent,
	}
}

// Stop halts the drain loop. In-flight tasks run to completion; tasks still
// queued are failed with ErrQueueStopped so no caller is left waiting on a
// future that will never resolve.
func (q *Queue) Stop() {
	if !q.stopped.CompareAndSwap(false, true) {
		return
	}
	close(q.stop)

	q.mu.Lock()
	pending := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, task := range pending {
		q.fail(task, ErrQueueStopped)
	}
}

func (q *Queue) drainLoop() {
	ticker := time.NewTicker(q.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.drain()
		}
	}
}

// drain admits queued tasks until the pool is full or the queue is empty.
// Only this goroutine increments active, so the concurrency cap cannot be
// overshot by a racing decrement.
func (q *Queue) drain() {
	for {
		if int(q.active.Load()) >= q.opts.MaxConcurrent {
			return
		}

		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.active.Add(1)
		go q.processTask(task)
	}
}

// processTask runs the per-task protocol: resolve, estimate, reserve,
// dispatch, reconcile, resolve the future. Errors are attached to the task's
// channel and never escape to the drain loop.
func (q *Queue) processTask(task *Task) {
	defer q.active.Add(-1)

	task.state = TaskAdmitted
	start := time.Now()
	ctx := context.Background()

	provider, err := q.resolveProvider(ctx, task.Model)
	if err != nil {
		q.fail(task, err)
		return
	}

	estimate := estimator.Estimate(task.Model, task.Query)

	if _, err := q.ledger.Debit(task.Address, estimate, "reservation for "+task.Id); err != nil {
		q.fail(task, err)
		return
	}
	logging.Debug("Reserved estimate", logging.Admission,
		"task", task.Id, "estimate", estimate.String())

	// Best-effort: a failed refill must not block already-reserved work.
	q.liquidity.CheckAndRefill(ctx)

	preBalance, preErr := q.liquidity.GetLedgerBalance(ctx)
	if preErr != nil {
		logging.Warn("Failed to read pre-dispatch pool balance, will bill at estimate", logging.Admission,
			"task", task.Id, "error", preErr)
	}

	task.state = TaskDispatched
	dispatchCtx, cancel := context.WithTimeout(ctx, q.opts.DispatchTimeout)
	defer cancel()
	result, dispatchErr := q.client.Dispatch(dispatchCtx, provider, task.Model, task.Query)

	if dispatchErr != nil {
		// Checking the dispatch context as well catches clients that lose
		// the cause while wrapping the transport error.
		if errors.Is(dispatchErr, context.DeadlineExceeded) || dispatchCtx.Err() == context.DeadlineExceeded {
			// The upstream call may still be running and billing the pool,
			// so the reservation is kept as a failed-query fee.
			q.fail(task, sdkerrors.Wrapf(ErrDispatchTimeout,
				"task %s gave up after %s", task.Id, q.opts.DispatchTimeout))
			return
		}
		// Nothing was metered upstream; release the reservation.
		if _, refundErr := q.ledger.Credit(task.Address, estimate, "release for "+task.Id, ""); refundErr != nil {
			logging.Error("Failed to release reservation", logging.Admission,
				"task", task.Id, "error", refundErr)
		}
		q.fail(task, sdkerrors.Wrap(ErrUpstreamDispatch, dispatchErr.Error()))
		return
	}

	actual := estimate
	postBalance, postErr := q.liquidity.GetLedgerBalance(ctx)
	if preErr == nil && postErr == nil {
		actual = preBalance.Sub(postBalance)
		// The pool can grow from unrelated activity between the two reads;
		// never turn that into a refund larger than was ever charged.
		if actual.IsNegative() {
			actual = decimal.Zero
		}
	} else if postErr != nil {
		logging.Warn("Failed to read post-dispatch pool balance, billing at estimate", logging.Admission,
			"task", task.Id, "error", postErr)
	}

	task.state = TaskReconciled
	reconciliationErr := q.reconcile(task, estimate, actual)

	task.state = TaskDone
	task.Response <- TaskResult{
		Response:          result.Response,
		Model:             task.Model,
		Cost:              actual,
		ExternalId:        result.ExternalId,
		ResponseTimeMs:    time.Since(start).Milliseconds(),
		Valid:             result.Valid,
		ReconciliationErr: reconciliationErr,
	}

	logging.Info("Task completed", logging.Admission,
		"task", task.Id, "address", task.Address,
		"estimate", estimate.String(), "actual", actual.String(),
		"duration_ms", time.Since(start).Milliseconds())
}

// reconcile settles the gap between the reserved estimate and the metered
// actual cost. An adjustment debit can itself fail on a drained account; the
// response is still delivered and the shortfall is reported alongside it.
func (q *Queue) reconcile(task *Task, estimate, actual decimal.Decimal) error {
	diff := actual.Sub(estimate)

	if diff.GreaterThan(reconcileEpsilon) {
		if _, err := q.ledger.Debit(task.Address, diff, "adjustment for "+task.Id); err != nil {
			logging.Error("Reconciliation debit failed", logging.Admission,
				"task", task.Id, "shortfall", diff.String(), "error", err)
			return sdkerrors.Wrap(ErrReconciliation, err.Error())
		}
		return nil
	}

	if diff.LessThan(reconcileEpsilon.Neg()) {
		if _, err := q.ledger.Credit(task.Address, diff.Neg(), "refund for "+task.Id, ""); err != nil {
			logging.Error("Reconciliation refund failed", logging.Admission,
				"task", task.Id, "refund", diff.Neg().String(), "error", err)
			return sdkerrors.Wrap(ErrReconciliation, err.Error())
		}
	}
	return nil
}

// resolveProvider tries the network's dynamic lookup first and the static
// fallback table second.
func (q *Queue) resolveProvider(ctx context.Context, model string) (*computeclient.Provider, error) {
	provider, err := q.client.ResolveProvider(ctx, model)
	if err == nil {
		return provider, nil
	}
	logging.Debug("Dynamic provider lookup failed, trying static table", logging.Admission,
		"model", model, "error", err)

	for i := range q.opts.FallbackProviders {
		fallback := &q.opts.FallbackProviders[i]
		for _, served := range fallback.Models {
			if served == model {
				return fallback, nil
			}
		}
	}

	return nil, &ModelNotFoundError{Requested: model, Available: q.availableModels(ctx)}
}

func (q *Queue) availableModels(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var available []string

	if models, err := q.client.ListModels(ctx); err == nil {
		for _, model := range models {
			if _, ok := seen[model]; !ok {
				seen[model] = struct{}{}
				available = append(available, model)
			}
		}
	}
	for _, provider := range q.opts.FallbackProviders {
		for _, model := range provider.Models {
			if _, ok := seen[model]; !ok {
				seen[model] = struct{}{}
				available = append(available, model)
			}
		}
	}
	return available
}

func (q *Queue) fail(task *Task, err error) {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrModelNotFound) {
		task.state = TaskRejected
	} else {
		task.state = TaskFailed
	}
	logging.Warn("Task failed", logging.Admission,
		"task", task.Id, "address", task.Address, "state", task.state, "error", err)
	task.Response <- TaskResult{Err: err}
}
