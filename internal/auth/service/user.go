package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// dummyHash is verified against when the username does not exist, so a
// miss costs the same as a wrong password.
var dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c29tZXNhbHRzb21lc2FsdA$QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVoxMjM0NTY"

type UserService struct {
	Store   store.Store
	Audit   *AuditService
	Clock   clockwork.Clock
	Metrics *metrics.Metrics
}

// Login checks a username and password. A successful login starts a new
// session, so an MFA verification from an earlier session is dropped.
func (s *UserService) Login(ctx context.Context, username, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.Metrics.Login("invalid_credentials")
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = cryptox.VerifyPassword(password, dummyHash)
		s.Metrics.Login("invalid_credentials")
		s.Audit.Warn(ctx, username, "Login failed: unknown user")
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("password verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.Metrics.Login("invalid_credentials")
		s.Audit.Warn(ctx, user.Username, "Login failed: wrong password")
		return domain.User{}, ErrInvalidCredentials
	}

	if user.AccountLocked {
		s.Metrics.Login("locked")
		s.Audit.Warn(ctx, user.Username, "Login refused: account locked")
		return domain.User{}, ErrAccountLocked
	}

	if next := user.MFAState.NewSession(); next != user.MFAState {
		if err := s.Store.Users().UpdateMFA(ctx, user.ID, next, user.MFASecret, user.LastOTP()); err != nil {
			return domain.User{}, fmt.Errorf("reset mfa session: %w", err)
		}
		user.MFAState = next
	}

	s.Metrics.Login("success")
	s.Audit.Info(ctx, user.Username, "User logged in")
	l.Info("user logged in", slog.String("user_id", user.ID))
	return user, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return loadUser(ctx, s.Store.Users(), userID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

type CreateUserInput struct {
	Name          string
	Username      string
	Email         string
	Password      string
	Roles         []string
	MFAEnforced   bool
	EmailVerified bool
}

// CreateUser validates input, checks the roles exist and stores the user.
// actor names the administrator for the audit trail.
func (s *UserService) CreateUser(ctx context.Context, actor string, in CreateUserInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return domain.User{}, invalidInput("username is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return domain.User{}, invalidInput("email is not valid")
	}
	if len(in.Password) < 8 {
		return domain.User{}, invalidInput("password must be at least 8 characters")
	}

	roles := domain.NormalizeRoles(in.Roles)
	if err := s.checkRoles(ctx, roles); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := clockOrReal(s.Clock).Now().UTC()
	u := domain.User{
		ID:            idx.NewAt(now).String(),
		Name:          strings.TrimSpace(in.Name),
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		Roles:         roles,
		EmailVerified: in.EmailVerified,
		MFAState:      domain.MFADisabled,
		MFAEnforced:   in.MFAEnforced,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, fmt.Errorf("%w: username or email already in use", ErrConflict)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.Audit.Info(ctx, u.Username, fmt.Sprintf("User created by %s", actor))
	return u, nil
}

// UpdateUserInput carries optional changes. Nil fields are left alone.
type UpdateUserInput struct {
	Name          *string
	Email         *string
	Password      *string
	Roles         []string
	MFAEnforced   *bool
	EmailVerified *bool
	AccountLocked *bool
}

// UpdateUser applies in to the user. Locking an account also revokes its
// refresh token.
func (s *UserService) UpdateUser(ctx context.Context, actor, userID string, in UpdateUserInput) (domain.User, error) {
	var hash string
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return domain.User{}, invalidInput("password must be at least 8 characters")
		}
		var err error
		if hash, err = cryptox.HashPassword(*in.Password); err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	if in.Roles != nil {
		in.Roles = domain.NormalizeRoles(in.Roles)
		if err := s.checkRoles(ctx, in.Roles); err != nil {
			return domain.User{}, err
		}
	}

	var u domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = loadUser(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}

		if in.Name != nil {
			u.Name = strings.TrimSpace(*in.Name)
		}
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if _, err := mail.ParseAddress(email); err != nil {
				return invalidInput("email is not valid")
			}
			u.Email = email
		}
		if in.Roles != nil {
			u.Roles = in.Roles
		}
		if in.MFAEnforced != nil {
			u.MFAEnforced = *in.MFAEnforced
		}
		if in.EmailVerified != nil {
			u.EmailVerified = *in.EmailVerified
		}
		if in.AccountLocked != nil {
			u.AccountLocked = *in.AccountLocked
		}
		u.UpdatedAt = clockOrReal(s.Clock).Now().UTC()

		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("%w: email already in use", ErrConflict)
			}
			return fmt.Errorf("update user: %w", err)
		}
		if hash != "" {
			if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			u.PasswordHash = hash
		}
		if u.AccountLocked {
			if err := tx.RefreshTokens().DeleteUserRefreshTokens(ctx, u.ID); err != nil {
				return fmt.Errorf("revoke refresh token: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.Audit.Info(ctx, u.Username, fmt.Sprintf("User updated by %s", actor))
	return u, nil
}

// DeleteUser removes the user and their refresh token. Administrators
// cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return invalidInput("cannot delete your own account")
	}
	u, err := loadUser(ctx, s.Store.Users(), userID)
	if err != nil {
		return err
	}
	if err := s.Store.Users().DeleteUser(ctx, u.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.Audit.Info(ctx, u.Username, fmt.Sprintf("User deleted by %s", actorID))
	return nil
}

func (s *UserService) checkRoles(ctx context.Context, roles []string) error {
	for _, r := range roles {
		_, err := s.Store.Roles().GetRoleByName(ctx, r)
		if errors.Is(err, store.ErrNotFound) {
			return invalidInput("unknown role %q", r)
		}
		if err != nil {
			return fmt.Errorf("lookup role: %w", err)
		}
	}
	return nil
}
