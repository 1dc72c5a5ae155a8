package ledger

import (
	"fmt"

	sdkerrors "cosmossdk.io/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound   = sdkerrors.Register("ledger", 2, "account not found")
	ErrInsufficientFunds = sdkerrors.Register("ledger", 3, "insufficient funds")
	ErrInvalidAmount     = sdkerrors.Register("ledger", 4, "amount must be positive")
)

// InsufficientFundsError reports how much a debit needed versus what the
// account actually held. It unwraps to ErrInsufficientFunds.
type InsufficientFundsError struct {
	Address   string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: required %s, available %s",
		e.Address, e.Required.String(), e.Available.String())
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
