package ledger

// Store is the persistence contract the ledger runs on. Implementations are
// plain read/write/append primitives; they carry no concurrency logic of
// their own. Serialization of mutations for a given address is the Ledger's
// job, so a Store call never races another call for the same account.
type Store interface {
	// GetAccount returns ErrAccountNotFound when the address has never been
	// provisioned or funded.
	GetAccount(address string) (*Account, error)
	PutAccount(account *Account) error

	// AppendEntry assigns and returns the entry's monotonic id.
	AppendEntry(entry *Entry) (int64, error)
	// ListEntries returns entries for the address, newest first.
	ListEntries(address string, limit, offset int) ([]Entry, error)

	// SeenReference reports whether any entry already carries the given
	// external reference. Used to deduplicate replayed deposit notifications.
	SeenReference(ref string) (bool, error)

	Close() error
}
