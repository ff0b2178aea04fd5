package account

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ledgerbank/ledgerbank/internal/ledger"
)

func TestOpenOneAccountPerUser(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())
	ctx := context.Background()
	owner := uuid.NewString()

	acc, err := svc.Open(ctx, owner, "")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if acc.Status != StatusActive {
		t.Fatalf("expected new account to be ACTIVE, got %s", acc.Status)
	}
	if acc.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %s", acc.Currency)
	}

	if _, err := svc.Open(ctx, owner, ""); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected duplicate account rejection, got %v", err)
	}
}

func TestBalanceRequiresOwnership(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)
	ctx := context.Background()

	owner := uuid.NewString()
	stranger := uuid.NewString()
	acc, err := svc.Open(ctx, owner, "INR")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := ledger.SeedCredit(store, acc.ID, 2_500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	balance, err := svc.Balance(ctx, owner, acc.ID)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 2_500 {
		t.Fatalf("expected balance 2500, got %d", balance)
	}

	if _, err := svc.Balance(ctx, stranger, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
}
