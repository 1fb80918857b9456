package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
)

func TestAdmin_RequiresAdminsRole(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	ts.createUser(t, "bob", nil)
	bob, _ := ts.login(t, "bob", "bob-password")

	_, err := bob.ListUsers(ctx)
	require.ErrorIs(t, err, authsdk.ErrForbidden)
	_, err = bob.ListRoles(ctx)
	require.ErrorIs(t, err, authsdk.ErrForbidden)
	_, err = bob.ListAuditLogs(ctx, 0)
	require.ErrorIs(t, err, authsdk.ErrForbidden)

	_, err = ts.client().ListUsers(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthorized)
}

func TestAdmin_UserLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()
	admin := ts.loginAdmin(t)

	created, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Name:     "Carol",
		Username: "carol",
		Email:    "carol@example.com",
		Password: "carol-password",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, []string{"users"}, created.Roles)
	require.Equal(t, "disabled", created.MFAState)

	_, err = admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Username: "carol", Email: "carol2@example.com", Password: "carol-password",
	})
	require.ErrorIs(t, err, authsdk.ErrConflict)

	_, err = admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Username: "dave", Email: "not-an-email", Password: "dave-password",
	})
	require.ErrorIs(t, err, authsdk.ErrInvalidRequest)

	_, err = admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Username: "erin", Email: "erin@example.com", Password: "erin-password", Roles: []string{"wizards"},
	})
	require.ErrorIs(t, err, authsdk.ErrInvalidRequest)

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	got, err := admin.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "carol@example.com", got.Email)

	_, err = admin.GetUser(ctx, "01J0000000000000000000NONE")
	require.ErrorIs(t, err, authsdk.ErrNotFound)

	carol, _ := ts.login(t, "carol", "carol-password")

	name := "Carol C."
	locked := true
	updated, err := admin.UpdateUser(ctx, created.ID, authsdk.UpdateUserRequest{Name: &name, AccountLocked: &locked})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
	require.True(t, updated.AccountLocked)

	// Locking revoked carol's session.
	_, err = carol.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)
	_, err = ts.client().Login(ctx, "carol", "carol-password")
	require.ErrorIs(t, err, authsdk.ErrAccountLocked)

	require.NoError(t, admin.DeleteUser(ctx, created.ID))
	_, err = admin.GetUser(ctx, created.ID)
	require.ErrorIs(t, err, authsdk.ErrNotFound)
	require.ErrorIs(t, admin.DeleteUser(ctx, created.ID), authsdk.ErrNotFound)

	require.ErrorIs(t, admin.DeleteUser(ctx, ts.adminID), authsdk.ErrInvalidRequest)

	msgs := ts.auditMessages(t)
	require.Contains(t, msgs, "carol:User created by admin")
	require.Contains(t, msgs, "carol:User updated by admin")
	require.Contains(t, msgs, "carol:User deleted by "+ts.adminID)
}

func TestAdmin_Roles(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()
	admin := ts.loginAdmin(t)

	role, err := admin.CreateRole(ctx, "auditors", "Read the audit log")
	require.NoError(t, err)
	require.Equal(t, "auditors", role.Name)

	_, err = admin.CreateRole(ctx, "auditors", "again")
	require.ErrorIs(t, err, authsdk.ErrConflict)
	_, err = admin.CreateRole(ctx, "Not Valid", "")
	require.ErrorIs(t, err, authsdk.ErrInvalidRequest)

	roles, err := admin.ListRoles(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	require.ElementsMatch(t, []string{"admins", "users", "auditors"}, names)

	require.ErrorIs(t, admin.DeleteRole(ctx, "admins"), authsdk.ErrInvalidRequest)

	_, err = admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Username: "frank", Email: "frank@example.com", Password: "frank-password", Roles: []string{"auditors"},
	})
	require.NoError(t, err)
	require.ErrorIs(t, admin.DeleteRole(ctx, "auditors"), authsdk.ErrConflict)

	_, err = admin.CreateRole(ctx, "temps", "")
	require.NoError(t, err)
	require.NoError(t, admin.DeleteRole(ctx, "temps"))
	require.ErrorIs(t, admin.DeleteRole(ctx, "temps"), authsdk.ErrNotFound)
}

func TestAdmin_Settings(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()
	admin := ts.loginAdmin(t)

	s, err := admin.PutSetting(ctx, "tenant.name", "Acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", s.Value)

	_, err = admin.PutSetting(ctx, "tenant.name", "Acme Pty")
	require.NoError(t, err)

	settings, err := admin.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	require.Equal(t, "Acme Pty", settings[0].Value)
}

func TestAdmin_AuditLogs(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	_, err := ts.client().Login(ctx, adminUser, "wrong-password")
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
	ts.clock.Advance(time.Second)
	admin := ts.loginAdmin(t)

	entries, err := admin.ListAuditLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "User logged in", entries[0].Message)
	require.Equal(t, "info", entries[0].Level)
	require.Equal(t, "Login failed: wrong password", entries[1].Message)
	require.Equal(t, "warn", entries[1].Level)

	entries, err = admin.ListAuditLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/auditlogs?limit=abc", nil)
	require.NoError(t, err)
	resp, err := admin.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
