package admission

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskState tracks where a task is in its lifecycle. States only move
// forward; Rejected and Failed are terminal from any prior state.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskAdmitted   TaskState = "admitted"
	TaskDispatched TaskState = "dispatched"
	TaskReconciled TaskState = "reconciled"
	TaskDone       TaskState = "done"
	TaskRejected   TaskState = "rejected"
	TaskFailed     TaskState = "failed"
)

// Task is the in-memory unit of admitted work. Never persisted; it lives from
// Submit until its result channel is resolved.
type Task struct {
	Id          string
	Address     string
	Query       string
	Model       string
	SubmittedAt time.Time

	// Response is resolved exactly once, with either a result or an error.
	// Buffered so the worker never blocks on a slow consumer.
	Response chan TaskResult

	state TaskState
}

// TaskResult is the terminal outcome of one task. When Err is nil the query
// was delivered; ReconciliationErr may still be set when the post-dispatch
// adjustment debit failed after the response was already produced.
type TaskResult struct {
	Response          string
	Model             string
	Cost              decimal.Decimal
	ExternalId        string
	ResponseTimeMs    int64
	Valid             bool
	ReconciliationErr error
	Err               error
}

// QueueStatus is a point-in-time snapshot of queue pressure.
type QueueStatus struct {
	QueueLength   int `json:"queue_length"`
	ActiveQueries int `json:"active_queries"`
	MaxConcurrent int `json:"max_concurrent"`
}
