package ledgerstore

import (
	"database/sql"
	"time"

	"inference-gateway/ledger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	balance    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	address            TEXT NOT NULL,
	kind               TEXT NOT NULL,
	amount             TEXT NOT NULL,
	description        TEXT NOT NULL,
	external_reference TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_address ON entries(address, id DESC);
CREATE INDEX IF NOT EXISTS idx_entries_reference ON entries(external_reference)
	WHERE external_reference != '';
`

// SQLiteStore persists accounts and the transaction log in a single sqlite
// file. Balances are stored as decimal strings to avoid float drift.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Writers are already serialized per-address by the ledger; a single
	// connection keeps sqlite's own locking out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetAccount(address string) (*ledger.Account, error) {
	row := s.db.QueryRow(
		"SELECT address, balance, created_at, updated_at FROM accounts WHERE address = ?", address)

	var account ledger.Account
	var balance string
	var createdAt, updatedAt int64
	if err := row.Scan(&account.Address, &balance, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	account.Balance = parsed
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	account.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &account, nil
}

func (s *SQLiteStore) PutAccount(account *ledger.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		account.Address,
		account.Balance.String(),
		account.CreatedAt.UnixMilli(),
		account.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) AppendEntry(entry *ledger.Entry) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO entries (address, kind, amount, description, external_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Address,
		string(entry.Kind),
		entry.Amount.String(),
		entry.Description,
		entry.ExternalReference,
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	entry.Id = id
	return id, nil
}

func (s *SQLiteStore) ListEntries(address string, limit, offset int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.Query(`
		SELECT id, address, kind, amount, description, external_reference, created_at
		FROM entries WHERE address = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		address, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var entry ledger.Entry
		var kind, amount string
		var createdAt int64
		if err := rows.Scan(&entry.Id, &entry.Address, &kind, &amount,
			&entry.Description, &entry.ExternalReference, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		entry.Kind = ledger.EntryKind(kind)
		entry.Amount = parsed
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) SeenReference(ref string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM entries WHERE external_reference = ?)", ref).Scan(&seen)
	return seen, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
