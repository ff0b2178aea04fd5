package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerbank/ledgerbank/internal/account"
	"github.com/ledgerbank/ledgerbank/internal/identity"
	"github.com/ledgerbank/ledgerbank/internal/ledger"
	"github.com/ledgerbank/ledgerbank/internal/logging"
	"github.com/ledgerbank/ledgerbank/internal/notification"
)

var (
	// ErrValidation marks a malformed request; correct the input and resubmit.
	ErrValidation = errors.New("validation failed")

	// ErrNotOwner indicates the caller does not own the source account.
	ErrNotOwner = errors.New("not owner of source account")

	// ErrAccountNotActive indicates one of the accounts is INACTIVE or FROZEN.
	ErrAccountNotActive = errors.New("both accounts must be ACTIVE to process the transaction")

	// ErrStillProcessing indicates the idempotency key belongs to an attempt
	// that has not finished yet. Not a failure; the caller should poll.
	ErrStillProcessing = errors.New("transaction is still processing")

	// ErrRetryTransfer indicates the key maps to a FAILED or REVERSED record;
	// the caller should retry with a fresh key.
	ErrRetryTransfer = errors.New("transaction did not complete, please retry")

	// ErrSystemAccountNotFound indicates the issuing principal has no account.
	ErrSystemAccountNotFound = errors.New("system account not found")
)

// InsufficientFundsError reports the sender balance at rejection time.
type InsufficientFundsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: current balance is %d, requested amount is %d", e.Balance, e.Requested)
}

// AccountDirectory resolves account identity and status. The coordinator only
// reads from it.
type AccountDirectory interface {
	FindByID(ctx context.Context, id string) (account.Account, error)
	FindByOwner(ctx context.Context, userID string) (account.Account, error)
}

// Service coordinates peer-to-peer transfers and system-originated issuance
// against the append-only ledger.
type Service struct {
	store    ledger.Store
	accounts AccountDirectory
	users    identity.Repository
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time

	// commitBarrier runs between the DEBIT and CREDIT appends inside the
	// atomic unit. Test hook only; see SetCommitBarrier.
	commitBarrier func() error
}

// NewService constructs a transfer service.
func NewService(store ledger.Store, accounts AccountDirectory, users identity.Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    store,
		accounts: accounts,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Input captures the data needed to move funds between two accounts.
type Input struct {
	FromAccountID   string
	ToAccountID     string
	Amount          int64
	IdempotencyKey  string
	RequestorUserID string
}

// IssueInput captures the data needed to issue initial funds.
type IssueInput struct {
	IssuerUserID   string
	ToAccountID    string
	Amount         int64
	IdempotencyKey string
}

// Result describes the outcome of a transfer or issuance attempt.
type Result struct {
	Transaction ledger.Transaction
	// Replayed is set when the idempotency key matched an earlier COMPLETED
	// transaction; Transaction holds that stored record.
	Replayed bool
	// Pending is set when the key matched an attempt still in flight.
	Pending bool
}

// Transfer moves amount between two active accounts, writing a balanced
// DEBIT/CREDIT pair and the transaction record in one atomic unit.
func (s *Service) Transfer(ctx context.Context, in Input) (Result, error) {
	if in.FromAccountID == "" || in.ToAccountID == "" || in.IdempotencyKey == "" {
		return Result{}, fmt.Errorf("%w: fromAccount, toAccount, amount and idempotencyKey are required", ErrValidation)
	}
	if in.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.FromAccountID == in.ToAccountID {
		return Result{}, fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	}

	from, err := s.accounts.FindByID(ctx, in.FromAccountID)
	if err != nil {
		return Result{}, err
	}
	if in.RequestorUserID != "" && from.UserID != in.RequestorUserID {
		return Result{}, ErrNotOwner
	}
	to, err := s.accounts.FindByID(ctx, in.ToAccountID)
	if err != nil {
		return Result{}, err
	}

	if existing, err := s.store.TransactionByKey(ctx, in.IdempotencyKey); err == nil {
		return replay(existing)
	} else if !errors.Is(err, ledger.ErrTransactionNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	if from.Status != account.StatusActive || to.Status != account.StatusActive {
		return Result{}, ErrAccountNotActive
	}

	var committed ledger.Transaction
	err = s.store.InAtomicUnit(ctx, []string{from.ID, to.ID}, func(u ledger.AtomicUnit) error {
		senderBalance, err := u.Balance(ctx, from.ID)
		if err != nil {
			return err
		}
		if senderBalance < in.Amount {
			return &InsufficientFundsError{Balance: senderBalance, Requested: in.Amount}
		}
		receiverBalance, err := u.Balance(ctx, to.ID)
		if err != nil {
			return err
		}

		now := s.now()
		tx, err := ledger.NewTransaction(from.ID, to.ID, in.Amount, in.IdempotencyKey, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := u.AppendTransaction(ctx, tx); err != nil {
			return err
		}

		debit, err := ledger.NewEntry(from.ID, tx.ID, ledger.EntryDebit, in.Amount, senderBalance-in.Amount, now)
		if err != nil {
			return err
		}
		if err := u.AppendEntry(ctx, debit); err != nil {
			return err
		}

		if s.commitBarrier != nil {
			if err := s.commitBarrier(); err != nil {
				return err
			}
		}

		credit, err := ledger.NewEntry(to.ID, tx.ID, ledger.EntryCredit, in.Amount, receiverBalance+in.Amount, now)
		if err != nil {
			return err
		}
		if err := u.AppendEntry(ctx, credit); err != nil {
			return err
		}

		committed, err = u.Complete(ctx, tx.ID, s.now())
		return err
	})
	if err != nil {
		return s.afterUnitFailure(ctx, in.IdempotencyKey, err)
	}

	s.notifyCompleted(ctx, to, committed)
	return Result{Transaction: committed}, nil
}

// IssueInitialFunds credits a destination account from the caller's system
// account. No balance check and no DEBIT entry: the issuing account sits
// outside the ledger's balance accounting.
func (s *Service) IssueInitialFunds(ctx context.Context, in IssueInput) (Result, error) {
	if in.ToAccountID == "" || in.IdempotencyKey == "" {
		return Result{}, fmt.Errorf("%w: toAccount, amount and idempotencyKey are required", ErrValidation)
	}
	if in.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	systemAccount, err := s.accounts.FindByOwner(ctx, in.IssuerUserID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Result{}, ErrSystemAccountNotFound
		}
		return Result{}, err
	}
	to, err := s.accounts.FindByID(ctx, in.ToAccountID)
	if err != nil {
		return Result{}, err
	}

	if existing, err := s.store.TransactionByKey(ctx, in.IdempotencyKey); err == nil {
		return replay(existing)
	} else if !errors.Is(err, ledger.ErrTransactionNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	if to.Status != account.StatusActive {
		return Result{}, ErrAccountNotActive
	}

	var committed ledger.Transaction
	err = s.store.InAtomicUnit(ctx, []string{to.ID}, func(u ledger.AtomicUnit) error {
		receiverBalance, err := u.Balance(ctx, to.ID)
		if err != nil {
			return err
		}

		now := s.now()
		tx, err := ledger.NewTransaction(systemAccount.ID, to.ID, in.Amount, in.IdempotencyKey, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := u.AppendTransaction(ctx, tx); err != nil {
			return err
		}

		credit, err := ledger.NewEntry(to.ID, tx.ID, ledger.EntryCredit, in.Amount, receiverBalance+in.Amount, now)
		if err != nil {
			return err
		}
		if err := u.AppendEntry(ctx, credit); err != nil {
			return err
		}

		committed, err = u.Complete(ctx, tx.ID, s.now())
		return err
	})
	if err != nil {
		return s.afterUnitFailure(ctx, in.IdempotencyKey, err)
	}

	s.notifyCompleted(ctx, to, committed)
	return Result{Transaction: committed}, nil
}

// afterUnitFailure maps a failed atomic unit to its caller-facing outcome.
// Losing the admission race surfaces as a replay of the winner's record.
func (s *Service) afterUnitFailure(ctx context.Context, key string, unitErr error) (Result, error) {
	var insufficient *InsufficientFundsError
	if errors.As(unitErr, &insufficient) {
		return Result{}, unitErr
	}
	if errors.Is(unitErr, ledger.ErrDuplicateKey) {
		if existing, err := s.store.TransactionByKey(ctx, key); err == nil {
			return replay(existing)
		}
		return Result{}, ErrStillProcessing
	}
	return Result{}, unitErr
}

func replay(existing ledger.Transaction) (Result, error) {
	switch existing.Status {
	case ledger.StatusCompleted:
		return Result{Transaction: existing, Replayed: true}, nil
	case ledger.StatusPending:
		return Result{Transaction: existing, Pending: true}, nil
	default:
		return Result{}, ErrRetryTransfer
	}
}

// notifyCompleted runs strictly after commit, outside the atomic unit.
// Failures are logged and swallowed.
func (s *Service) notifyCompleted(ctx context.Context, to account.Account, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	recipient, err := s.users.FindByID(ctx, to.UserID)
	if err != nil {
		s.logger.Warn("notification recipient lookup failed", "account_id", to.ID, "error", err)
		return
	}
	msg := notification.TransferCompleted{
		RecipientEmail: recipient.Email,
		RecipientName:  recipient.Name,
		Amount:         tx.Amount,
		MaskedAccount:  notification.MaskAccountNumber(to.ID),
	}
	if err := s.notifier.NotifyTransferCompleted(ctx, msg); err != nil {
		s.logger.Warn("transfer notification failed", "transaction_id", tx.ID, "error", err)
	}
}
