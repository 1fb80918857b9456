package domain

import "time"

// TokenPair is what the issuer hands back after a login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RefreshToken is the stored record. At most one exists per user; only the
// fingerprint of the JWT is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }
