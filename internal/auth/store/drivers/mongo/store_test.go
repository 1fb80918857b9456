package mongo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store/drivers/mongo"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
)

// setupMongo starts a throwaway mongod and returns a migrated store bound to
// a fresh database.
func setupMongo(t *testing.T) *mongo.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("mongo container tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	s, err := mongo.Connect(ctx, uri, "tenantadmin_test", 20*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())
	return s
}

func mkUser(username string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$fake",
		Roles:        []string{"users"},
	}
}

func TestMongoStore(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		u := mkUser("ada")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		dup := mkUser("ADA")
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

		got, err := s.Users().GetUserByUsername(ctx, "Ada")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, domain.MFADisabled, got.MFAState)

		require.NoError(t, s.Users().UpdateMFA(ctx, u.ID, domain.MFAPendingEnrollment, "sealed", domain.OTPStep{Matched: 7, Accepted: 8}))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, domain.MFAPendingEnrollment, got.MFAState)
		require.Equal(t, domain.OTPStep{Matched: 7, Accepted: 8}, got.LastOTP())

		require.ErrorIs(t, s.Users().UpdateMFA(ctx, "missing", domain.MFADisabled, "", domain.OTPStep{}), store.ErrNotFound)
	})

	t.Run("refresh token upsert keeps one record", func(t *testing.T) {
		u := mkUser("grace")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				now := time.Now()
				errs <- s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
					ID: idx.New().String(), UserID: u.ID, TokenHash: fmt.Sprintf("hash-%d", i),
					CreatedAt: now, ExpiresAt: now.Add(time.Hour),
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		n, err := s.RefreshTokens().CountUserRefreshTokens(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.NoError(t, s.Users().DeleteUser(ctx, u.ID))
		n, err = s.RefreshTokens().CountUserRefreshTokens(ctx, u.ID)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("roles settings audit", func(t *testing.T) {
		require.NoError(t, s.Roles().CreateRole(ctx, domain.Role{Name: "admins"}))
		require.ErrorIs(t, s.Roles().CreateRole(ctx, domain.Role{Name: "admins"}), store.ErrAlreadyExists)

		require.NoError(t, s.Settings().PutSetting(ctx, domain.Setting{Key: "k", Value: "1"}))
		require.NoError(t, s.Settings().PutSetting(ctx, domain.Setting{Key: "k", Value: "2"}))
		got, err := s.Settings().GetSetting(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "2", got.Value)

		old := time.Now().Add(-48 * time.Hour)
		require.NoError(t, s.AuditLogs().CreateAuditEntry(ctx, domain.AuditEntry{
			ID: idx.New().String(), User: "ada", Level: domain.AuditWarn, Message: "old", CreatedAt: old,
		}))
		require.NoError(t, s.AuditLogs().CreateAuditEntry(ctx, domain.AuditEntry{
			ID: idx.New().String(), User: "ada", Level: domain.AuditInfo, Message: "new",
		}))
		n, err := s.AuditLogs().DeleteAuditEntriesBefore(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		list, err := s.AuditLogs().ListAuditEntries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "new", list[0].Message)
	})
}
