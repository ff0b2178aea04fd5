package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no account exists for the given identifier.
	ErrNotFound = errors.New("account not found")

	// ErrAlreadyExists indicates the user already owns an account.
	ErrAlreadyExists = errors.New("account already exists for this user")
)

// Repository resolves account identity and status. Accounts are created on
// user onboarding and mutated only by status changes; they are never deleted.
type Repository interface {
	Create(ctx context.Context, acc Account) error
	FindByID(ctx context.Context, id string) (Account, error)
	FindByOwner(ctx context.Context, userID string) (Account, error)
	ListByOwner(ctx context.Context, userID string) ([]Account, error)
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, acc Account) error {
	accountID, err := uuid.Parse(acc.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(acc.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, user_id, status, currency, created_at)
        VALUES ($1, $2, $3, $4, $5)`, accountID, userID, string(acc.Status), acc.Currency, acc.CreatedAt.UTC())
	return err
}

// FindByID fetches an account by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, user_id, status, currency, created_at
        FROM accounts WHERE id = $1`, accountID))
}

// FindByOwner fetches the account belonging to a user.
func (r *PostgresRepository) FindByOwner(ctx context.Context, userID string) (Account, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, user_id, status, currency, created_at
        FROM accounts WHERE user_id = $1`, ownerID))
}

// ListByOwner returns all accounts owned by a user.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]Account, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id, status, currency, created_at
        FROM accounts WHERE user_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *PostgresRepository) scanOne(row pgx.Row) (Account, error) {
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acc        Account
		id, userID uuid.UUID
		status     string
		createdAt  time.Time
	)
	if err := row.Scan(&id, &userID, &status, &acc.Currency, &createdAt); err != nil {
		return Account{}, err
	}
	acc.ID = id.String()
	acc.UserID = userID.String()
	acc.Status = Status(status)
	acc.CreatedAt = createdAt.UTC()
	return acc, nil
}
