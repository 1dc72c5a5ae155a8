package admission

import (
	"fmt"
	"strings"

	sdkerrors "cosmossdk.io/errors"
)

var (
	ErrValidation       = sdkerrors.Register("admission", 2, "invalid submission")
	ErrModelNotFound    = sdkerrors.Register("admission", 3, "model not found")
	ErrUpstreamDispatch = sdkerrors.Register("admission", 4, "upstream dispatch failed")
	ErrDispatchTimeout  = sdkerrors.Register("admission", 5, "dispatch timed out")
	ErrReconciliation   = sdkerrors.Register("admission", 6, "reconciliation debit failed")
	ErrQueueStopped     = sdkerrors.Register("admission", 7, "queue is stopped")
)

// ModelNotFoundError carries the requested model and what the gateway could
// actually serve at the time. It unwraps to ErrModelNotFound.
type ModelNotFoundError struct {
	Requested string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found, available: %s",
		e.Requested, strings.Join(e.Available, ", "))
}

func (e *ModelNotFoundError) Unwrap() error {
	return ErrModelNotFound
}
