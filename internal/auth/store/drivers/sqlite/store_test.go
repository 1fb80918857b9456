package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkUser(username string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$fake",
		Roles:        []string{"users"},
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := mkUser("ada")
	u.Roles = []string{"users", "admins"}
	u.MFAEnforced = true
	require.NoError(t, s.Users().CreateUser(ctx, u))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "ada", got.Username)
	require.Equal(t, []string{"admins", "users"}, got.Roles)
	require.Equal(t, domain.MFADisabled, got.MFAState)
	require.True(t, got.MFAEnforced)
	require.False(t, got.CreatedAt.IsZero())

	byName, err := s.Users().GetUserByUsername(ctx, "ADA")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)

	got.Name = "Ada L."
	got.AccountLocked = true
	require.NoError(t, s.Users().UpdateUser(ctx, got))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada L.", got.Name)
	require.True(t, got.AccountLocked)

	require.NoError(t, s.Users().UpdateMFA(ctx, u.ID, domain.MFAEnabledVerified, "sealed", domain.OTPStep{Matched: 42, Accepted: 41}))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MFAEnabledVerified, got.MFAState)
	require.Equal(t, "sealed", got.MFASecret)
	require.Equal(t, int64(42), got.MFALastStep)
	require.Equal(t, int64(41), got.MFAAcceptedStep)

	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new"))

	list, err := s.Users().ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.Users().DeleteUser(ctx, u.ID))
	_, err = s.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)
	require.ErrorIs(t, s.Users().UpdateMFA(ctx, u.ID, domain.MFADisabled, "", domain.OTPStep{}), store.ErrNotFound)
}

func TestUsers_UniqueUsernameAndEmail(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Users().CreateUser(ctx, mkUser("ada")))

	dupName := mkUser("Ada")
	dupName.Email = "other@example.com"
	require.ErrorIs(t, s.Users().CreateUser(ctx, dupName), store.ErrAlreadyExists)

	dupEmail := mkUser("grace")
	dupEmail.Email = "ADA@example.com"
	require.ErrorIs(t, s.Users().CreateUser(ctx, dupEmail), store.ErrAlreadyExists)
}

func TestRefreshTokens_OnePerUser(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := mkUser("ada")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	now := time.Now()
	rt := domain.RefreshToken{
		ID: idx.New().String(), UserID: u.ID, TokenHash: "h1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rt))

	second := rt
	second.ID = idx.New().String()
	second.TokenHash = "h2"
	require.ErrorIs(t, s.RefreshTokens().CreateRefreshToken(ctx, second), store.ErrAlreadyExists)

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, time.Microsecond)

	n, err := s.RefreshTokens().CountUserRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.RefreshTokens().DeleteUserRefreshTokens(ctx, u.ID))
	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "h1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshTokens_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now()

	for i, exp := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		u := mkUser([]string{"a", "b", "c"}[i])
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID: idx.New().String(), UserID: u.ID, TokenHash: u.Username,
			CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(exp),
		}))
	}

	n, err := s.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "c")
	require.NoError(t, err)
}

func TestDeleteUserCascadesRefreshToken(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := mkUser("ada")
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: idx.New().String(), UserID: u.ID, TokenHash: "h", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, s.Users().DeleteUser(ctx, u.ID))
	n, err := s.RefreshTokens().CountUserRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, mkUser("ghost")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByUsername(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, mkUser("real"))
	}))
	_, err = s.Users().GetUserByUsername(ctx, "real")
	require.NoError(t, err)
}

func TestRolesAndSettings(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Roles().CreateRole(ctx, domain.Role{Name: "admins", Description: "a"}))
	require.ErrorIs(t, s.Roles().CreateRole(ctx, domain.Role{Name: "admins"}), store.ErrAlreadyExists)
	require.NoError(t, s.Roles().CreateRole(ctx, domain.Role{Name: "users"}))

	roles, err := s.Roles().ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, "admins", roles[0].Name)

	require.NoError(t, s.Roles().DeleteRole(ctx, "users"))
	_, err = s.Roles().GetRoleByName(ctx, "users")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Settings().PutSetting(ctx, domain.Setting{Key: "theme", Value: "dark"}))
	require.NoError(t, s.Settings().PutSetting(ctx, domain.Setting{Key: "theme", Value: "light"}))
	set, err := s.Settings().GetSetting(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "light", set.Value)

	all, err := s.Settings().ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAuditLogs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		require.NoError(t, s.AuditLogs().CreateAuditEntry(ctx, domain.AuditEntry{
			ID: idx.New().String(), User: "ada", Level: domain.AuditInfo,
			Message: "event", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	latest, err := s.AuditLogs().ListAuditEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.True(t, latest[0].CreatedAt.After(latest[1].CreatedAt))

	n, err := s.AuditLogs().DeleteAuditEntriesBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
