package account

import "time"

// Status describes whether an account can participate in transfers.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusFrozen   Status = "FROZEN"
)

// Account is a ledger-backed customer account. Balances are never stored here;
// they are derived from the ledger entry log.
type Account struct {
	ID        string
	UserID    string
	Status    Status
	Currency  string
	CreatedAt time.Time
}
