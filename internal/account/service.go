package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerbank/ledgerbank/internal/ledger"
)

const defaultCurrency = "INR"

// Service exposes account operations backed by the ledger.
type Service struct {
	repo  Repository
	store ledger.Store
}

// NewService builds an account service instance.
func NewService(repo Repository, store ledger.Store) *Service {
	return &Service{repo: repo, store: store}
}

// Open provisions an account for a user. A user holds at most one account.
func (s *Service) Open(ctx context.Context, userID, currency string) (Account, error) {
	if userID == "" {
		return Account{}, errors.New("owner is required")
	}
	if _, err := s.repo.FindByOwner(ctx, userID); err == nil {
		return Account{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}

	if currency == "" {
		currency = defaultCurrency
	}

	acc := Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusActive,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Get retrieves account metadata.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByOwner returns all accounts owned by a user.
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]Account, error) {
	return s.repo.ListByOwner(ctx, userID)
}

// Balance derives the current balance of an account owned by userID. Accounts
// owned by someone else are reported as not found.
func (s *Service) Balance(ctx context.Context, userID, accountID string) (int64, error) {
	acc, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if acc.UserID != userID {
		return 0, ErrNotFound
	}
	return s.store.Balance(ctx, acc.ID)
}
