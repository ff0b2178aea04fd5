package identity

import "time"

// User represents a registered customer. System users are the issuing
// authority for initial funds; the flag is set at seed time and never through
// the API.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	System       bool
	CreatedAt    time.Time
}

// Credentials carries registration and login input.
type Credentials struct {
	Email    string
	Name     string
	Password string
}
