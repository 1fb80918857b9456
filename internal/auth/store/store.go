package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by each driver
// (sqlite, mongo). Sub-repositories are reached through methods so a Tx can
// hand out the same repos bound to the transaction, and so a Tx cannot start
// another Tx.
type Store interface {
	Users() Users
	Roles() Roles
	RefreshTokens() RefreshTokens
	Settings() Settings
	AuditLogs() AuditLogs

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a Store bound to one transaction.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// ListUsers returns every user ordered by username.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateUser inserts u. Duplicate username or email gives ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes profile fields, roles and the admin flags
	// (locked, enforced, email verified). MFA state and password are
	// untouched.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdateMFA writes the MFA state, sealed secret and last accepted step.
	UpdateMFA(ctx context.Context, userID string, state domain.MFAState, secret string, last domain.OTPStep) error

	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DeleteUser also removes the user's refresh token.
	DeleteUser(ctx context.Context, userID string) error

	IsEmpty(ctx context.Context) (bool, error)
}

type Roles interface {
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	CreateRole(ctx context.Context, r domain.Role) error
	DeleteRole(ctx context.Context, name string) error
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores t as the user's refresh record. Callers
	// delete the old one first. sqlite rejects a second record with
	// ErrAlreadyExists, mongo replaces it.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeleteUserRefreshTokens is logout and the first half of issuing.
	DeleteUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens removes records whose expiry is before now
	// and reports how many went.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)

	CountUserRefreshTokens(ctx context.Context, userID string) (int, error)
}

type Settings interface {
	GetSetting(ctx context.Context, key string) (domain.Setting, error)
	ListSettings(ctx context.Context) ([]domain.Setting, error)

	// PutSetting inserts or replaces the value for key.
	PutSetting(ctx context.Context, s domain.Setting) error
}

type AuditLogs interface {
	CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error

	// ListAuditEntries returns the newest entries first.
	ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error)

	DeleteAuditEntriesBefore(ctx context.Context, before time.Time) (int64, error)
}
