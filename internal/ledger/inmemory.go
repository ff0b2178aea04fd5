package ledger

import (
	"context"
	"sync"
	"time"
)

type inMemoryStore struct {
	mu           sync.Mutex
	entries      map[string][]Entry      // account id -> append-only entry log
	transactions map[string]Transaction  // transaction id -> record
	byKey        map[string]string       // idempotency key -> transaction id
}

// NewInMemory creates a concurrency-safe in-memory ledger store. Atomic units
// stage their writes and merge them only on success, so a failed unit leaves
// no trace. Useful for unit tests and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		entries:      make(map[string][]Entry),
		transactions: make(map[string]Transaction),
		byKey:        make(map[string]string),
	}
}

func (s *inMemoryStore) Balance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumEntries(s.entries[accountID]), nil
}

func (s *inMemoryStore) EntriesForAccount(_ context.Context, accountID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	committed := s.entries[accountID]
	out := make([]Entry, len(committed))
	copy(out, committed)
	return out, nil
}

func (s *inMemoryStore) TransactionByKey(_ context.Context, key string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return s.transactions[id], nil
}

// InAtomicUnit holds the store lock for the duration of fn, which serializes
// every balance-check-then-debit sequence regardless of the accounts involved.
func (s *inMemoryStore) InAtomicUnit(_ context.Context, _ []string, fn func(AtomicUnit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit := &memUnit{
		store:  s,
		staged: make(map[string]Transaction),
		byKey:  make(map[string]string),
	}
	if err := fn(unit); err != nil {
		return err
	}

	for id, tx := range unit.staged {
		s.transactions[id] = tx
		s.byKey[tx.IdempotencyKey] = id
	}
	for _, entry := range unit.newEntries {
		s.entries[entry.AccountID] = append(s.entries[entry.AccountID], entry)
	}
	return nil
}

// memUnit stages writes against the locked store. Reads see committed state
// plus the unit's own staged writes.
type memUnit struct {
	store      *inMemoryStore
	staged     map[string]Transaction
	byKey      map[string]string
	newEntries []Entry
}

func (u *memUnit) Balance(_ context.Context, accountID string) (int64, error) {
	balance := sumEntries(u.store.entries[accountID])
	for _, entry := range u.newEntries {
		if entry.AccountID != accountID {
			continue
		}
		if entry.Type == EntryCredit {
			balance += entry.Amount
		} else {
			balance -= entry.Amount
		}
	}
	return balance, nil
}

func (u *memUnit) TransactionByKey(_ context.Context, key string) (Transaction, error) {
	if id, ok := u.byKey[key]; ok {
		return u.staged[id], nil
	}
	if id, ok := u.store.byKey[key]; ok {
		return u.store.transactions[id], nil
	}
	return Transaction{}, ErrTransactionNotFound
}

func (u *memUnit) AppendTransaction(_ context.Context, tx Transaction) error {
	if _, exists := u.store.byKey[tx.IdempotencyKey]; exists {
		return ErrDuplicateKey
	}
	if _, exists := u.byKey[tx.IdempotencyKey]; exists {
		return ErrDuplicateKey
	}
	u.staged[tx.ID] = tx
	u.byKey[tx.IdempotencyKey] = tx.ID
	return nil
}

func (u *memUnit) AppendEntry(_ context.Context, entry Entry) error {
	u.newEntries = append(u.newEntries, entry)
	return nil
}

func (u *memUnit) Complete(_ context.Context, transactionID string, at time.Time) (Transaction, error) {
	tx, ok := u.staged[transactionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	tx.Status = StatusCompleted
	tx.UpdatedAt = at
	u.staged[transactionID] = tx
	return tx, nil
}

func sumEntries(entries []Entry) int64 {
	var balance int64
	for _, entry := range entries {
		if entry.Type == EntryCredit {
			balance += entry.Amount
		} else {
			balance -= entry.Amount
		}
	}
	return balance
}
