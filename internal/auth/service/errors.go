package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account locked")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidOTP          = errors.New("invalid one-time password")
	ErrMFAAlreadyEnabled   = errors.New("mfa already enabled")
	ErrMFANotPending       = errors.New("mfa enrollment not started")
	ErrMFANotEnabled       = errors.New("mfa not enabled")
	ErrForbidden           = errors.New("forbidden")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
)

// mapMFAError converts the domain transition errors into service sentinels.
func mapMFAError(err error) error {
	switch {
	case errors.Is(err, domain.ErrMFAAlreadyEnabled):
		return ErrMFAAlreadyEnabled
	case errors.Is(err, domain.ErrMFANotPending):
		return ErrMFANotPending
	case errors.Is(err, domain.ErrMFANotEnabled):
		return ErrMFANotEnabled
	default:
		return err
	}
}

// loadUser fetches a user and reports a missing row as ErrUserNotFound.
func loadUser(ctx context.Context, users store.Users, id string) (domain.User, error) {
	u, err := users.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
