package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry. Amounts are always stored positive;
// the kind carries the direction.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryCharge     EntryKind = "charge"
)

// Account is the prepaid balance record for one requester address.
type Account struct {
	Address   string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one row of the append-only transaction log. Ordering by Id is the
// audit trail. A charge entry may be an initial reservation or a later
// reconciliation adjustment; the description is the only distinction.
type Entry struct {
	Id                int64
	Address           string
	Kind              EntryKind
	Amount            decimal.Decimal
	Description       string
	ExternalReference string
	CreatedAt         time.Time
}

// NormalizeAddress case-normalizes an account address. All ledger operations
// key accounts by the normalized form.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
