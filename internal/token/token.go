package token

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNetwork            = errors.New("token request failed")
	ErrResponseFormat     = errors.New("token response is malformed")
	ErrMissingCredentials = errors.New("access key id and secret are required")
	ErrSignatureMismatch  = errors.New("signature does not match")
)

type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

func (t Token) TTL(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Issuer mints one access token per gateway connection. Tokens are never
// renewed mid-session and never reused across connections.
type Issuer interface {
	Issue(ctx context.Context) (Token, error)
}
