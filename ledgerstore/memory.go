package ledgerstore

import (
	"sync"

	"inference-gateway/ledger"
)

// MemoryStore is a map-backed Store. Used in tests and for ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]ledger.Account
	entries  []ledger.Entry
	refs     map[string]struct{}
	nextId   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]ledger.Account),
		refs:     make(map[string]struct{}),
		nextId:   1,
	}
}

func (s *MemoryStore) GetAccount(address string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &account, nil
}

func (s *MemoryStore) PutAccount(account *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.Address] = *account
	return nil
}

func (s *MemoryStore) AppendEntry(entry *ledger.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Id = s.nextId
	s.nextId++
	s.entries = append(s.entries, *entry)
	if entry.ExternalReference != "" {
		s.refs[entry.ExternalReference] = struct{}{}
	}
	return entry.Id, nil
}

func (s *MemoryStore) ListEntries(address string, limit, offset int) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []ledger.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Address == address {
			matched = append(matched, s.entries[i])
		}
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) SeenReference(ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, seen := s.refs[ref]
	return seen, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
