package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTransactionNotFound indicates no transaction exists for the given
	// identifier or idempotency key.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateKey indicates the idempotency key is already bound to another
	// transaction. Exactly one concurrent attempt per key can win the insert.
	ErrDuplicateKey = errors.New("idempotency key already used")

	// ErrAccountUnknown indicates the ledger holds no row for an account the
	// atomic unit was asked to serialize on.
	ErrAccountUnknown = errors.New("ledger account unknown")
)

// EntryType tags the direction of a ledger entry.
type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

// Status is the lifecycle state of a transaction. FAILED and REVERSED are
// reserved for a compensation workflow that does not exist yet; no code path
// assigns them.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusReversed  Status = "REVERSED"
)

// Entry is a single immutable signed movement of funds against one account.
// Entries are only ever appended; the Store interface carries no update or
// delete path for them.
type Entry struct {
	ID            string
	AccountID     string
	TransactionID string
	Type          EntryType
	Amount        int64
	BalanceAfter  int64
	CreatedAt     time.Time
}

// NewEntry builds a validated ledger entry. The amount must be positive and
// the resulting balance non-negative.
func NewEntry(accountID, transactionID string, typ EntryType, amount, balanceAfter int64, at time.Time) (Entry, error) {
	if accountID == "" {
		return Entry{}, fmt.Errorf("entry must belong to an account")
	}
	if transactionID == "" {
		return Entry{}, fmt.Errorf("entry must be linked to a transaction")
	}
	if typ != EntryCredit && typ != EntryDebit {
		return Entry{}, fmt.Errorf("entry type must be CREDIT or DEBIT")
	}
	if amount <= 0 {
		return Entry{}, fmt.Errorf("entry amount must be greater than zero")
	}
	if balanceAfter < 0 {
		return Entry{}, fmt.Errorf("balance after entry cannot be negative")
	}
	return Entry{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		TransactionID: transactionID,
		Type:          typ,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		CreatedAt:     at,
	}, nil
}

// Transaction records a movement of value between two accounts, identified for
// replay purposes by the caller-supplied idempotency key.
type Transaction struct {
	ID             string
	FromAccountID  string
	ToAccountID    string
	Amount         int64
	IdempotencyKey string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTransaction builds a validated PENDING transaction.
func NewTransaction(fromAccountID, toAccountID string, amount int64, idempotencyKey string, at time.Time) (Transaction, error) {
	if fromAccountID == "" || toAccountID == "" {
		return Transaction{}, fmt.Errorf("transaction requires both accounts")
	}
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("transaction amount must be greater than zero")
	}
	if idempotencyKey == "" {
		return Transaction{}, fmt.Errorf("idempotency key is required")
	}
	return Transaction{
		ID:             uuid.NewString(),
		FromAccountID:  fromAccountID,
		ToAccountID:    toAccountID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Status:         StatusPending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

// AtomicUnit is the write scope handed to InAtomicUnit callbacks. Everything
// appended inside the unit becomes visible to other observers all at once on
// commit, or not at all.
type AtomicUnit interface {
	// Balance derives the account balance including writes staged in this unit.
	Balance(ctx context.Context, accountID string) (int64, error)

	// TransactionByKey looks up a transaction by idempotency key, seeing both
	// committed and staged records.
	TransactionByKey(ctx context.Context, key string) (Transaction, error)

	// AppendTransaction stages a new transaction record. Returns
	// ErrDuplicateKey when the idempotency key is already taken.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// AppendEntry stages a new ledger entry.
	AppendEntry(ctx context.Context, entry Entry) error

	// Complete flips the staged transaction to COMPLETED and returns it.
	Complete(ctx context.Context, transactionID string, at time.Time) (Transaction, error)
}

// Store is the append-only ledger backend. Balances are never stored, only
// derived from entries. InAtomicUnit serializes against the named accounts so
// a balance check and the subsequent debit cannot interleave with another
// committed write on the same account.
type Store interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	EntriesForAccount(ctx context.Context, accountID string) ([]Entry, error)
	TransactionByKey(ctx context.Context, key string) (Transaction, error)
	InAtomicUnit(ctx context.Context, accountIDs []string, fn func(AtomicUnit) error) error
}
