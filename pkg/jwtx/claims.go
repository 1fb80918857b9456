package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims is the fixed claim set carried by both access and refresh tokens.
// Field names follow the JSON the admin client already understands.
type Claims struct {
	jwt.RegisteredClaims

	Name     string   `json:"name,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`

	MFAEnabled  bool `json:"mfaEnabled"`
	MFAEnforced bool `json:"mfaEnforced"`
	MFAVerified bool `json:"mfaVerified"`

	// MFAState is the raw state name, for clients that want more than the
	// three booleans.
	MFAState string `json:"mfaState,omitempty"`
}

// NewClaims stamps the registered claims. Callers fill in the identity.
func NewClaims(subject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. Two
// tokens minted in the same second for the same user still differ.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasRole reports exact membership. There is no wildcard.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// SessionComplete is false while an MFA step is outstanding: either MFA is
// enforced but not enrolled, or enrolled but not verified this session.
func (c *Claims) SessionComplete() bool {
	if c.MFAEnforced && !c.MFAEnabled {
		return false
	}
	return !c.OTPOutstanding()
}

// OTPOutstanding is true when MFA is on but this session has not passed an
// OTP check yet.
func (c *Claims) OTPOutstanding() bool {
	return c.MFAEnabled && !c.MFAVerified
}

// ValidateIssuer checks the issuer when one is expected.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" || c.Issuer == expected {
		return nil
	}
	return ErrIssuer
}

// ValidateExpiry checks exp and nbf against now, with leeway for clock skew.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
