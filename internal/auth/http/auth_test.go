package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

func TestLogin_SetsTokenCookies(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: adminUser, Password: adminPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	for _, name := range []string{httpx.AccessTokenCookie, RefreshTokenCookie} {
		c := cookieByName(resp.Cookies(), name)
		require.NotNil(t, c, name)
		require.NotEmpty(t, c.Value)
		require.True(t, c.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, c.SameSite)
		require.Equal(t, "/", c.Path)
		require.False(t, c.Secure)
	}

	var body authsdk.UserResponse
	require.NoError(t, jsonDecode(resp, &body))
	require.Equal(t, adminUser, body.User.Username)
	require.Contains(t, body.User.Roles, "admins")
	require.False(t, body.User.MFAEnabled)
	require.Contains(t, ts.auditMessages(t), "admin:User logged in")
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Logins.WithLabelValues("success")))
}

func TestLogin_SecureCookiesFromConfig(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(cfg *RouterConfig) {
		cfg.Cookies = CookieConfig{Secure: true, Domain: "admin.example.com"}
	})

	resp := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: adminUser, Password: adminPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c := cookieByName(resp.Cookies(), httpx.AccessTokenCookie)
	require.NotNil(t, c)
	require.True(t, c.Secure)
	require.Equal(t, "admin.example.com", c.Domain)
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	lockedUser := ts.createUser(t, "locked", nil)
	locked := true
	_, err := ts.router.UserService.UpdateUser(context.Background(), "test", lockedUser.ID, service.UpdateUserInput{AccountLocked: &locked})
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"wrong password", authsdk.LoginRequest{UserName: adminUser, Password: "nope-nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown user", authsdk.LoginRequest{UserName: "ghost", Password: "whatever1"}, http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", authsdk.LoginRequest{UserName: adminUser}, http.StatusBadRequest, "invalid_request"},
		{"not an object", []string{"admin"}, http.StatusBadRequest, "invalid_request"},
		{"locked account", authsdk.LoginRequest{UserName: "locked", Password: "locked-password"}, http.StatusForbidden, "account_locked"},
		{"locked account wrong password", authsdk.LoginRequest{UserName: "locked", Password: "nope-nope"}, http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.postJSON(t, "/auth/login", tt.body)
			require.Equal(t, tt.wantCode, resp.StatusCode)
			require.Equal(t, tt.wantErr, decodeError(t, resp).Error)
			require.Empty(t, resp.Cookies())
		})
	}
}

func TestLogin_RateLimitedPerUserName(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	for range httpx.StrictLimit.Burst {
		resp := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: "ghost", Password: "guess-guess"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: "Ghost", Password: "guess-guess"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.Equal(t, "rate_limited", decodeError(t, resp).Error)
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RateLimitRejected.WithLabelValues("login")))

	// Another user name from the same address has its own bucket.
	resp = ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: adminUser, Password: adminPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// loginFrom posts a login that claims to come from forwardedFor.
func loginFrom(t *testing.T, ts *testServer, forwardedFor, userName string) *http.Response {
	t.Helper()
	body, err := json.Marshal(authsdk.LoginRequest{UserName: userName, Password: "guess-guess"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/auth/login", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	for i := range httpx.StrictLimit.Burst {
		resp := loginFrom(t, ts, fmt.Sprintf("198.51.100.%d", i), "ghost")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := loginFrom(t, ts, "198.51.100.250", "ghost")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RateLimitRejected.WithLabelValues("login")))
}

func TestLogin_RateLimitedPerUserNameAcrossAddresses(t *testing.T) {
	t.Parallel()
	loopback, err := httpx.ParseTrustedProxies("127.0.0.0/8, ::1")
	require.NoError(t, err)
	ts := newTestServer(t, func(cfg *RouterConfig) { cfg.TrustedProxies = loopback })

	// Behind a trusted proxy every forwarded address gets its own strict
	// bucket, but the user name bucket is shared.
	for i := range httpx.ModerateLimit.Burst {
		resp := loginFrom(t, ts, fmt.Sprintf("198.51.100.%d", i), "ghost")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, i)
	}

	resp := loginFrom(t, ts, "203.0.113.1", "ghost")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RateLimitRejected.WithLabelValues("login_user")))
	require.Zero(t, testutil.ToFloat64(ts.metrics.RateLimitRejected.WithLabelValues("login")))
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	c := ts.loginAdmin(t)
	u, err := c.RefreshAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, adminUser, u.Username)

	_, err = ts.client().RefreshAccessToken(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)

	require.NoError(t, c.Logout(ctx))
	_, err = c.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Refreshes.WithLabelValues("ok")))
}

func TestRefresh_ReloadsUser(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	bob := ts.createUser(t, "bob", nil)
	c, u := ts.login(t, "bob", "bob-password")
	require.NotContains(t, u.Roles, "admins")

	roles := []string{"admins", "users"}
	_, err := ts.router.UserService.UpdateUser(ctx, "test", bob.ID, service.UpdateUserInput{Roles: roles})
	require.NoError(t, err)

	u, err = c.RefreshAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, roles, u.Roles)

	// The refreshed access cookie carries the new role.
	_, err = c.ListUsers(ctx)
	require.NoError(t, err)
}

func TestRefresh_LockedAccountRejected(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	bob := ts.createUser(t, "bob", nil)
	c, _ := ts.login(t, "bob", "bob-password")

	locked := true
	_, err := ts.router.UserService.UpdateUser(ctx, "test", bob.ID, service.UpdateUserInput{AccountLocked: &locked})
	require.NoError(t, err)

	_, err = c.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)
}

func TestRefresh_RotationSetsNewRefreshCookie(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil, func(s *service.TokenService) { s.RotateRefresh = true })

	login := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: adminUser, Password: adminPassword})
	require.Equal(t, http.StatusOK, login.StatusCode)
	first := cookieByName(login.Cookies(), RefreshTokenCookie)
	require.NotNil(t, first)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/auth/createNewAccessToken", nil)
	require.NoError(t, err)
	req.AddCookie(first)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	second := cookieByName(resp.Cookies(), RefreshTokenCookie)
	require.NotNil(t, second)
	require.NotEqual(t, first.Value, second.Value)

	// The old refresh token no longer works.
	req, err = http.NewRequest(http.MethodGet, ts.srv.URL+"/auth/createNewAccessToken", nil)
	require.NoError(t, err)
	req.AddCookie(first)
	again, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer again.Body.Close()
	require.Equal(t, http.StatusUnauthorized, again.StatusCode)
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, ts.client().Logout(ctx))

	c := ts.loginAdmin(t)
	require.NoError(t, c.Logout(ctx))
	require.Contains(t, ts.auditMessages(t), "admin:User logged out")

	// The access cookie is gone from the jar.
	_, err := c.ListUsers(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthorized)
}

func TestAuthn_CookieOnly(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	login := ts.postJSON(t, "/auth/login", authsdk.LoginRequest{UserName: adminUser, Password: adminPassword})
	access := cookieByName(login.Cookies(), httpx.AccessTokenCookie)
	require.NotNil(t, access)

	for _, header := range []string{"Authorization", "x-access-token"} {
		req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/users", nil)
		require.NoError(t, err)
		if header == "Authorization" {
			req.Header.Set(header, "Bearer "+access.Value)
		} else {
			req.Header.Set(header, access.Value)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
		er := decodeError(t, resp)
		_ = resp.Body.Close()
		require.Equal(t, authsdk.ErrorResponse{Error: "unauthorized", Message: "authentication required"}, er)
	}

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/users", nil)
	require.NoError(t, err)
	req.AddCookie(access)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
