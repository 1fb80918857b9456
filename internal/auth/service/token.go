package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
	"github.com/aussiebroadwan/tenantadmin/pkg/jwtx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// TokenService mints and validates the access/refresh pair. The two token
// kinds are signed with different secrets so one can never pass as the
// other.
type TokenService struct {
	Store store.Store

	AccessSigner    jwtx.Signer
	AccessVerifier  jwtx.Verifier
	RefreshSigner   jwtx.Signer
	RefreshVerifier jwtx.Verifier

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RotateRefresh re-issues the refresh token on every refresh.
	RotateRefresh bool

	Clock   clockwork.Clock
	Metrics *metrics.Metrics
}

// RefreshResult is the outcome of a successful refresh. Tokens.RefreshToken
// is empty unless the refresh token was rotated.
type RefreshResult struct {
	User    domain.User
	Claims  jwtx.Claims
	Tokens  domain.TokenPair
	Rotated bool
}

// Issue signs a fresh pair for user and replaces the user's refresh record.
// Concurrent calls for one user leave exactly one record: the last writer's.
func (s *TokenService) Issue(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	now := clockOrReal(s.Clock).Now()

	access, accessExp, err := s.sign(s.AccessSigner, user, s.accessTTL(), now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.sign(s.RefreshSigner, user, s.refreshTTL(), now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	rec := domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(refresh),
		CreatedAt: now.UTC(),
		ExpiresAt: refreshExp.UTC(),
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().DeleteUserRefreshTokens(ctx, user.ID); err != nil {
			return fmt.Errorf("delete old refresh token: %w", err)
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess checks signature and expiry only. It never touches the
// store, so a role change shows up at the next refresh.
func (s *TokenService) ValidateAccess(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.AccessVerifier.Verify(token)
	if err != nil {
		slogx.FromContext(ctx).Debug("access token rejected", slog.Any("error", err))
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Refresh trades a refresh token for a new access token, reloading the user
// so role, lock and MFA changes take effect. Every rejection is
// ErrInvalidRefreshToken.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	res, err := s.refresh(ctx, refreshToken)
	if errors.Is(err, ErrInvalidRefreshToken) {
		s.Metrics.Refresh("invalid")
	} else if err == nil {
		s.Metrics.Refresh("ok")
	}
	return res, err
}

func (s *TokenService) refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	l := slogx.FromContext(ctx)
	now := clockOrReal(s.Clock).Now()

	if refreshToken == "" {
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		l.Debug("refresh token has no record")
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	claims, err := s.RefreshVerifier.Verify(refreshToken)
	if err != nil {
		l.Debug("refresh token rejected", slog.Any("error", err))
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if claims.Subject != rec.UserID {
		l.Debug("refresh token subject does not match record")
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if rec.Expired(now) {
		l.Debug("refresh record expired", slog.String("user_id", rec.UserID))
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	user, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("load user: %w", err)
	}
	if user.AccountLocked {
		l.Info("refresh refused for locked account", slog.String("user_id", user.ID))
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	if s.RotateRefresh {
		pair, err := s.Issue(ctx, user)
		if err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{User: user, Claims: s.claimsFor(user, s.accessTTL(), now), Tokens: pair, Rotated: true}, nil
	}

	access, accessExp, err := s.sign(s.AccessSigner, user, s.accessTTL(), now)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return RefreshResult{
		User:   user,
		Claims: s.claimsFor(user, s.accessTTL(), now),
		Tokens: domain.TokenPair{AccessToken: access, AccessExpiresAt: accessExp},
	}, nil
}

// Revoke removes the user's refresh record. It is idempotent.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.Store.RefreshTokens().DeleteUserRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeByToken revokes whatever user owns refreshToken and returns that
// user's id. An unknown token is not an error; the id is then empty.
func (s *TokenService) RevokeByToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", nil
	}
	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}
	return rec.UserID, s.Revoke(ctx, rec.UserID)
}

// ClaimsFor is the claim set an access token for user would carry now.
func (s *TokenService) ClaimsFor(user domain.User) jwtx.Claims {
	return s.claimsFor(user, s.accessTTL(), clockOrReal(s.Clock).Now())
}

func (s *TokenService) claimsFor(user domain.User, ttl time.Duration, now time.Time) jwtx.Claims {
	c := jwtx.NewClaims(user.ID, s.Issuer, ttl, now)
	c.Name = user.Name
	c.Username = user.Username
	c.Email = user.Email
	c.Roles = append([]string(nil), user.Roles...)
	c.MFAEnabled = user.MFAEnabled()
	c.MFAEnforced = user.MFAEnforced
	c.MFAVerified = user.MFAVerified()
	c.MFAState = user.MFAState.String()
	return c
}

func (s *TokenService) sign(signer jwtx.Signer, user domain.User, ttl time.Duration, now time.Time) (string, time.Time, error) {
	claims := s.claimsFor(user, ttl, now)
	tok, err := signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}
