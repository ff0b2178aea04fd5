package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore persists the append-only ledger in PostgreSQL. Atomic units
// run inside a database transaction that locks the participating account rows
// in sorted order, so concurrent units on the same account serialize without
// deadlocking.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const balanceQuery = `
        SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)
        FROM ledger_entries WHERE account_id = $1`

// Balance derives the committed balance for an account by summing its entries.
// An account with no entries has balance zero.
func (s *PostgresStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	if err := s.db.QueryRow(ctx, balanceQuery, accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("derive balance: %w", err)
	}
	return balance, nil
}

// EntriesForAccount returns the committed entries for an account, oldest first.
func (s *PostgresStore) EntriesForAccount(ctx context.Context, accountID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, account_id, transaction_id, type, amount, balance_after, created_at
        FROM ledger_entries WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry           Entry
			id, accID, txID uuid.UUID
			typ             string
		)
		if err := rows.Scan(&id, &accID, &txID, &typ, &entry.Amount, &entry.BalanceAfter, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.ID = id.String()
		entry.AccountID = accID.String()
		entry.TransactionID = txID.String()
		entry.Type = EntryType(typ)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) TransactionByKey(ctx context.Context, key string) (Transaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, `SELECT id, from_account_id, to_account_id, amount, idempotency_key, status, created_at, updated_at
        FROM transactions WHERE idempotency_key = $1`, key))
}

// InAtomicUnit runs fn inside a database transaction after locking the given
// account rows FOR UPDATE in sorted ID order. All writes staged by fn commit
// together; any error rolls the whole unit back.
func (s *PostgresStore) InAtomicUnit(ctx context.Context, accountIDs []string, fn func(AtomicUnit) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin atomic unit: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	locked := append([]string(nil), accountIDs...)
	sort.Strings(locked)
	for _, accountID := range locked {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrAccountUnknown, accountID)
			}
			return fmt.Errorf("lock account %s: %w", accountID, err)
		}
	}

	if err := fn(&pgUnit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit atomic unit: %w", err)
	}
	return nil
}

type pgUnit struct {
	tx pgx.Tx
}

func (u *pgUnit) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	if err := u.tx.QueryRow(ctx, balanceQuery, accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("derive balance: %w", err)
	}
	return balance, nil
}

func (u *pgUnit) TransactionByKey(ctx context.Context, key string) (Transaction, error) {
	return scanTransaction(u.tx.QueryRow(ctx, `SELECT id, from_account_id, to_account_id, amount, idempotency_key, status, created_at, updated_at
        FROM transactions WHERE idempotency_key = $1`, key))
}

func (u *pgUnit) AppendTransaction(ctx context.Context, tx Transaction) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO transactions (id, from_account_id, to_account_id, amount, idempotency_key, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, tx.IdempotencyKey, string(tx.Status), tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (u *pgUnit) AppendEntry(ctx context.Context, entry Entry) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO ledger_entries (id, account_id, transaction_id, type, amount, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.AccountID, entry.TransactionID, string(entry.Type), entry.Amount, entry.BalanceAfter, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (u *pgUnit) Complete(ctx context.Context, transactionID string, at time.Time) (Transaction, error) {
	return scanTransaction(u.tx.QueryRow(ctx, `UPDATE transactions SET status = 'COMPLETED', updated_at = $2 WHERE id = $1
        RETURNING id, from_account_id, to_account_id, amount, idempotency_key, status, created_at, updated_at`,
		transactionID, at.UTC()))
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx               Transaction
		id, fromID, toID uuid.UUID
		status           string
	)
	err := row.Scan(&id, &fromID, &toID, &tx.Amount, &tx.IdempotencyKey, &status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.ID = id.String()
	tx.FromAccountID = fromID.String()
	tx.ToAccountID = toID.String()
	tx.Status = Status(status)
	return tx, nil
}
