package notification

import (
	"context"
	"log/slog"
	"strings"
)

const maskedWidth = 12

// TransferCompleted is the payload of a transfer-completed notification.
type TransferCompleted struct {
	RecipientEmail string
	RecipientName  string
	Amount         int64
	MaskedAccount  string
}

// Registration is the payload of a welcome notification.
type Registration struct {
	Email string
	Name  string
}

// Notifier delivers best-effort notifications to downstream channels. Failures
// never affect the transaction that triggered them.
type Notifier interface {
	NotifyTransferCompleted(ctx context.Context, msg TransferCompleted) error
	NotifyRegistration(ctx context.Context, msg Registration) error
}

// LogNotifier writes notification payloads to the structured logger. It stands
// in for the production mail channel.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyTransferCompleted writes the transfer notification to the logger.
func (n *LogNotifier) NotifyTransferCompleted(_ context.Context, msg TransferCompleted) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification.transfer_completed",
		"recipient", msg.RecipientEmail,
		"name", msg.RecipientName,
		"amount", msg.Amount,
		"account", msg.MaskedAccount,
	)
	return nil
}

// NotifyRegistration writes the welcome notification to the logger.
func (n *LogNotifier) NotifyRegistration(_ context.Context, msg Registration) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification.registration", "recipient", msg.Email, "name", msg.Name)
	return nil
}

// MaskAccountNumber renders an account number as its last 4 characters
// left-padded with '*' to a fixed width of 12.
func MaskAccountNumber(accountNumber string) string {
	tail := accountNumber
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return strings.Repeat("*", maskedWidth-len(tail)) + tail
}
