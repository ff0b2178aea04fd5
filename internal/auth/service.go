package auth

import (
	"context"
	"time"

	"github.com/ledgerbank/ledgerbank/internal/identity"
)

// Principal is the verified caller identity attached to a request.
type Principal struct {
	UserID string
	Email  string
	Name   string
	System bool
}

// Service issues and verifies access tokens and handles revocation.
type Service struct {
	secret    []byte
	ttl       time.Duration
	users     identity.Repository
	blacklist Blacklist
}

// NewService builds an auth service.
func NewService(secret string, ttl time.Duration, users identity.Repository, blacklist Blacklist) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, users: users, blacklist: blacklist}
}

// IssueToken signs an access token for the user.
func (s *Service) IssueToken(user identity.User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := map[string]any{
		"sub":    user.ID,
		"email":  user.Email,
		"system": user.System,
		"iat":    now.Unix(),
		"exp":    exp.Unix(),
	}
	signed, err := SignHS256(claims, s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and revocation, then resolves the principal
// against the user store. The system flag comes from the stored record, not
// from the token.
func (s *Service) Verify(ctx context.Context, token string) (Principal, error) {
	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrInvalidToken
	}

	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return Principal{}, err
	}
	sub, _ := claims["sub"].(string)
	user, err := s.users.FindByID(ctx, sub)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: user.ID, Email: user.Email, Name: user.Name, System: user.System}, nil
}

// Logout revokes the token for the remainder of its lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return ErrInvalidToken
	}
	ttl := s.ttl
	if exp, ok := claims["exp"].(float64); ok {
		ttl = time.Until(time.Unix(int64(exp), 0))
	}
	return s.blacklist.Revoke(ctx, token, ttl)
}
