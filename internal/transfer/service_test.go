package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerbank/ledgerbank/internal/account"
	"github.com/ledgerbank/ledgerbank/internal/identity"
	"github.com/ledgerbank/ledgerbank/internal/ledger"
	"github.com/ledgerbank/ledgerbank/internal/notification"
)

type testNotifier struct {
	mu   sync.Mutex
	sent []notification.TransferCompleted
}

func (n *testNotifier) NotifyTransferCompleted(_ context.Context, msg notification.TransferCompleted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *testNotifier) NotifyRegistration(_ context.Context, _ notification.Registration) error {
	return nil
}

type fixture struct {
	svc      *Service
	store    ledger.Store
	accounts account.Repository
	users    identity.Repository
	notifier *testNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewInMemory()
	accounts := account.NewMemoryRepository()
	users := identity.NewMemoryRepository()
	notifier := &testNotifier{}
	return &fixture{
		svc:      NewService(store, accounts, users, notifier, nil),
		store:    store,
		accounts: accounts,
		users:    users,
		notifier: notifier,
	}
}

func (f *fixture) seedAccount(t *testing.T, name string, status account.Status) account.Account {
	t.Helper()
	ctx := context.Background()
	user := identity.User{ID: uuid.NewString(), Email: name + "@example.com", Name: name, CreatedAt: time.Now().UTC()}
	if err := f.users.Create(ctx, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	acc := account.Account{ID: uuid.NewString(), UserID: user.ID, Status: status, Currency: "INR", CreatedAt: time.Now().UTC()}
	if err := f.accounts.Create(ctx, acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func (f *fixture) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	if err := ledger.SeedCredit(f.store, accountID, amount); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
}

func TestTransferInsufficientFundsLeavesNoWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	_, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 150, IdempotencyKey: "k-over"})
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if insufficient.Balance != 100 {
		t.Fatalf("error should carry current balance 100, got %d", insufficient.Balance)
	}

	if _, err := f.store.TransactionByKey(ctx, "k-over"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Fatalf("rejected attempt left a transaction record: %v", err)
	}
	entries, _ := f.store.EntriesForAccount(ctx, from.ID)
	if len(entries) != 1 {
		t.Fatalf("rejected attempt left ledger entries: %d", len(entries))
	}
}

func TestTransferIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	first, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 50, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if first.Transaction.Status != ledger.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", first.Transaction.Status)
	}

	second, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 50, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay of stored result")
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("replay returned a different transaction")
	}

	balance, _ := f.store.Balance(ctx, from.ID)
	if balance != 50 {
		t.Fatalf("replay must not double-debit, balance=%d", balance)
	}
}

func TestTransferPendingReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	// A PENDING record with the same key simulates an attempt still in flight.
	pending, err := ledger.NewTransaction(from.ID, to.ID, 10, "k-pending", time.Now().UTC())
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	err = f.store.InAtomicUnit(ctx, []string{from.ID, to.ID}, func(u ledger.AtomicUnit) error {
		return u.AppendTransaction(ctx, pending)
	})
	if err != nil {
		t.Fatalf("stage pending: %v", err)
	}

	res, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 10, IdempotencyKey: "k-pending"})
	if err != nil {
		t.Fatalf("pending replay should not fail: %v", err)
	}
	if !res.Pending {
		t.Fatalf("expected still-processing outcome")
	}
	balance, _ := f.store.Balance(ctx, from.ID)
	if balance != 100 {
		t.Fatalf("pending replay must not write entries, balance=%d", balance)
	}
}

func TestTransferRejectsInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusFrozen)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	if _, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 10, IdempotencyKey: "k-frozen"}); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected inactive account rejection, got %v", err)
	}
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)

	cases := []Input{
		{FromAccountID: "", ToAccountID: to.ID, Amount: 10, IdempotencyKey: "k"},
		{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 10, IdempotencyKey: ""},
		{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 0, IdempotencyKey: "k"},
		{FromAccountID: from.ID, ToAccountID: to.ID, Amount: -5, IdempotencyKey: "k"},
		{FromAccountID: from.ID, ToAccountID: from.ID, Amount: 10, IdempotencyKey: "k"},
	}
	for i, in := range cases {
		if _, err := f.svc.Transfer(ctx, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	if _, err := f.svc.Transfer(ctx, Input{FromAccountID: uuid.NewString(), ToAccountID: to.ID, Amount: 10, IdempotencyKey: "k"}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected unknown account rejection, got %v", err)
	}
}

func TestTransferRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	_, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 10, IdempotencyKey: "k-owner", RequestorUserID: uuid.NewString()})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner rejection, got %v", err)
	}
}

func TestTransferAtomicityOnMidUnitFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	boom := errors.New("storage failure after debit write")
	SetCommitBarrier(f.svc, func() error { return boom })

	if _, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 40, IdempotencyKey: "k-crash"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	fromBalance, _ := f.store.Balance(ctx, from.ID)
	toBalance, _ := f.store.Balance(ctx, to.ID)
	if fromBalance != 100 || toBalance != 0 {
		t.Fatalf("half-written attempt leaked: from=%d to=%d", fromBalance, toBalance)
	}
	if _, err := f.store.TransactionByKey(ctx, "k-crash"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Fatalf("discarded attempt still visible: %v", err)
	}

	// A retry with the same key succeeds once the fault clears.
	SetCommitBarrier(f.svc, nil)
	if _, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 40, IdempotencyKey: "k-crash"}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestNoOverdraftUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	// Widen the window between the balance check and the credit write.
	SetCommitBarrier(f.svc, func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		completed    int
		insufficient int
	)
	for _, key := range []string{"k-race-1", "k-race-2"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 60, IdempotencyKey: key})
			mu.Lock()
			defer mu.Unlock()
			var insufficientErr *InsufficientFundsError
			switch {
			case err == nil:
				completed++
			case errors.As(err, &insufficientErr):
				insufficient++
			default:
				t.Errorf("unexpected outcome for %s: %v", key, err)
			}
		}(key)
	}
	wg.Wait()

	if completed != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one commit and one rejection, got completed=%d insufficient=%d", completed, insufficient)
	}
	balance, _ := f.store.Balance(ctx, from.ID)
	if balance != 40 {
		t.Fatalf("expected final sender balance 40, got %d", balance)
	}
}

func TestConcurrentSameKeyYieldsOneTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 1_000)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 100, IdempotencyKey: "k-shared"})
		}(i)
	}
	wg.Wait()

	var fresh int
	for i := 0; i < workers; i++ {
		if errs[i] != nil && !errors.Is(errs[i], ErrStillProcessing) {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if errs[i] == nil && !results[i].Replayed && !results[i].Pending {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one Created winner, got %d", fresh)
	}
	balance, _ := f.store.Balance(ctx, from.ID)
	if balance != 900 {
		t.Fatalf("shared key must debit exactly once, balance=%d", balance)
	}
}

func TestIssuanceAsymmetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issuer := f.seedAccount(t, "treasury", account.StatusActive)
	to := f.seedAccount(t, "carol", account.StatusActive)

	res, err := f.svc.IssueInitialFunds(ctx, IssueInput{IssuerUserID: issuer.UserID, ToAccountID: to.ID, Amount: 1_000, IdempotencyKey: "seed-1"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if res.Transaction.Status != ledger.StatusCompleted {
		t.Fatalf("expected COMPLETED issuance, got %s", res.Transaction.Status)
	}
	if res.Transaction.FromAccountID != issuer.ID {
		t.Fatalf("issuance must record the system account as origin")
	}

	toEntries, _ := f.store.EntriesForAccount(ctx, to.ID)
	if len(toEntries) != 1 || toEntries[0].Type != ledger.EntryCredit {
		t.Fatalf("expected exactly one CREDIT entry for the recipient, got %+v", toEntries)
	}
	issuerEntries, _ := f.store.EntriesForAccount(ctx, issuer.ID)
	if len(issuerEntries) != 0 {
		t.Fatalf("issuing account must stay outside ledger accounting, got %d entries", len(issuerEntries))
	}

	balance, _ := f.store.Balance(ctx, to.ID)
	if balance != 1_000 {
		t.Fatalf("expected recipient balance 1000, got %d", balance)
	}

	// Replay returns the stored issuance.
	again, err := f.svc.IssueInitialFunds(ctx, IssueInput{IssuerUserID: issuer.UserID, ToAccountID: to.ID, Amount: 1_000, IdempotencyKey: "seed-1"})
	if err != nil || !again.Replayed {
		t.Fatalf("expected issuance replay, got %+v err=%v", again, err)
	}
}

func TestTransferNotifiesRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.seedAccount(t, "alice", account.StatusActive)
	to := f.seedAccount(t, "bob", account.StatusActive)
	f.fund(t, from.ID, 100)

	if _, err := f.svc.Transfer(ctx, Input{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 25, IdempotencyKey: "k-notify"}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
	}
	msg := f.notifier.sent[0]
	if msg.RecipientEmail != "bob@example.com" {
		t.Fatalf("notification should target the recipient, got %s", msg.RecipientEmail)
	}
	if msg.MaskedAccount != notification.MaskAccountNumber(to.ID) {
		t.Fatalf("notification must mask the destination account")
	}
	if len(msg.MaskedAccount) != 12 {
		t.Fatalf("masked account must be 12 characters")
	}
}
