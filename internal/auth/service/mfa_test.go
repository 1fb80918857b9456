package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enroll takes a user through start and finish at the current fake time.
func enroll(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	ctx := context.Background()
	en, err := env.mfa.StartEnrollment(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, env.mfa.FinishEnrollment(ctx, userID, codeAt(t, en.Secret, env.clock.Now())))
	return en.Secret
}

func TestMFA_StartEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")

	first, err := env.mfa.StartEnrollment(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Secret)
	require.True(t, strings.HasPrefix(first.URL, "otpauth://totp/"))
	require.Contains(t, first.URL, "issuer=TenantAdmin")

	got := env.reload(t, u.ID)
	require.Equal(t, domain.MFAPendingEnrollment, got.MFAState)
	require.NotEmpty(t, got.MFASecret)
	require.NotEqual(t, first.Secret, got.MFASecret)
	opened, err := env.mfa.Sealer.Open(got.MFASecret)
	require.NoError(t, err)
	require.Equal(t, first.Secret, opened)

	second, err := env.mfa.StartEnrollment(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)
	require.Equal(t, domain.MFAPendingEnrollment, env.reload(t, u.ID).MFAState)

	_, err = env.mfa.StartEnrollment(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMFA_FinishEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")

	err := env.mfa.FinishEnrollment(ctx, u.ID, "123456")
	require.ErrorIs(t, err, ErrMFANotPending)

	en, err := env.mfa.StartEnrollment(ctx, u.ID)
	require.NoError(t, err)

	wrong := codeAt(t, en.Secret, env.clock.Now().Add(5*time.Minute))
	err = env.mfa.FinishEnrollment(ctx, u.ID, wrong)
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.Equal(t, domain.MFAPendingEnrollment, env.reload(t, u.ID).MFAState)
	require.Contains(t, env.auditMessages(t), "warn:ada:Invalid OTP submitted")

	require.NoError(t, env.mfa.FinishEnrollment(ctx, u.ID, codeAt(t, en.Secret, env.clock.Now())))
	got := env.reload(t, u.ID)
	require.Equal(t, domain.MFAEnabledVerified, got.MFAState)
	require.Equal(t, currentStep(env.clock.Now()), got.MFALastStep)
	require.True(t, got.MFAEnabled())
	require.True(t, got.MFAVerified())

	_, err = env.mfa.StartEnrollment(ctx, u.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.MFAEvents.WithLabelValues("finish", "invalid_otp")))
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.MFAEvents.WithLabelValues("finish", "ok")))
}

func TestMFA_StartRejectedWhenEnabledAndEnforced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")
	enroll(t, env, u.ID)

	enforced := true
	_, err := env.users.UpdateUser(ctx, "admin", u.ID, UpdateUserInput{MFAEnforced: &enforced})
	require.NoError(t, err)

	_, err = env.mfa.StartEnrollment(ctx, u.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestMFA_FinishRepeatIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")

	en, err := env.mfa.StartEnrollment(ctx, u.ID)
	require.NoError(t, err)
	code := codeAt(t, en.Secret, env.clock.Now())
	require.NoError(t, env.mfa.FinishEnrollment(ctx, u.ID, code))
	require.NoError(t, env.mfa.FinishEnrollment(ctx, u.ID, code))
	enrolled := env.reload(t, u.ID)

	err = env.mfa.FinishEnrollment(ctx, u.ID, "000000")
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	// Once the step rolls over the same code is a replay and changes nothing.
	env.clock.Advance(30 * time.Second)
	err = env.mfa.FinishEnrollment(ctx, u.ID, code)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	got := env.reload(t, u.ID)
	require.Equal(t, domain.MFAEnabledVerified, got.MFAState)
	require.Equal(t, enrolled.LastOTP(), got.LastOTP())
	require.Equal(t, enrolled.MFASecret, got.MFASecret)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.MFAEvents.WithLabelValues("finish", "repeat")))
}

func TestMFA_RepeatOfSkewedCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")
	secret := enroll(t, env, u.ID)

	for _, offset := range []time.Duration{30 * time.Second, -30 * time.Second} {
		// Each round starts a fresh unverified session a few steps later.
		env.clock.Advance(2 * time.Minute)
		_, err := env.users.Login(ctx, "ada", "ada-password")
		require.NoError(t, err)

		now := env.clock.Now()
		code := codeAt(t, secret, now.Add(offset))
		require.NoError(t, env.mfa.VerifyLogin(ctx, u.ID, code), offset)
		accepted := env.reload(t, u.ID).LastOTP()
		require.Equal(t, domain.OTPStep{Matched: currentStep(now.Add(offset)), Accepted: currentStep(now)}, accepted)

		// Sent again straight away, e.g. a double submit.
		require.NoError(t, env.mfa.VerifyLogin(ctx, u.ID, code), offset)
		got := env.reload(t, u.ID)
		require.Equal(t, domain.MFAEnabledVerified, got.MFAState)
		require.Equal(t, accepted, got.LastOTP())

		// The step it was accepted in is over, so it is a replay now.
		env.clock.Advance(30 * time.Second)
		require.ErrorIs(t, env.mfa.VerifyLogin(ctx, u.ID, code), ErrInvalidOTP, offset)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(env.metrics.MFAEvents.WithLabelValues("verify", "repeat")))
}

func TestMFA_VerifyLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")

	err := env.mfa.VerifyLogin(ctx, u.ID, "123456")
	require.ErrorIs(t, err, ErrMFANotEnabled)

	secret := enroll(t, env, u.ID)
	enrollCode := codeAt(t, secret, env.clock.Now())

	// A new login drops the verification.
	_, err = env.users.Login(ctx, "ada", "ada-password")
	require.NoError(t, err)
	require.Equal(t, domain.MFAEnabledUnverified, env.reload(t, u.ID).MFAState)

	// The enrollment code was already used in this step.
	err = env.mfa.VerifyLogin(ctx, u.ID, enrollCode)
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.Equal(t, domain.MFAEnabledUnverified, env.reload(t, u.ID).MFAState)

	env.clock.Advance(30 * time.Second)
	code := codeAt(t, secret, env.clock.Now())
	require.NoError(t, env.mfa.VerifyLogin(ctx, u.ID, code))
	require.Equal(t, domain.MFAEnabledVerified, env.reload(t, u.ID).MFAState)

	// Same code, same step, already verified: no-op success.
	require.NoError(t, env.mfa.VerifyLogin(ctx, u.ID, code))

	// Once the step rolls over the code is a replay.
	env.clock.Advance(30 * time.Second)
	err = env.mfa.VerifyLogin(ctx, u.ID, code)
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.Contains(t, env.auditMessages(t), "info:ada:MFA login verified")
}

func TestMFA_VerifyLoginWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "ada")
	secret := enroll(t, env, u.ID)

	env.clock.Advance(10 * time.Minute)
	now := env.clock.Now()

	tests := []struct {
		name string
		at   time.Time
		err  error
	}{
		{name: "two steps ahead", at: now.Add(60 * time.Second), err: ErrInvalidOTP},
		{name: "two steps behind", at: now.Add(-60 * time.Second), err: ErrInvalidOTP},
		{name: "one step behind", at: now.Add(-30 * time.Second)},
		{name: "one step ahead", at: now.Add(30 * time.Second)},
	}
	for _, tt := range tests {
		err := env.mfa.VerifyLogin(ctx, u.ID, codeAt(t, secret, tt.at))
		if tt.err != nil {
			require.ErrorIs(t, err, tt.err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
	}

	// Having accepted t+1, a code from t is now stale.
	err := env.mfa.VerifyLogin(ctx, u.ID, codeAt(t, secret, now))
	require.ErrorIs(t, err, ErrInvalidOTP)

	for _, bad := range []string{"", "12345", "1234567", "abcdef"} {
		require.ErrorIs(t, env.mfa.VerifyLogin(ctx, u.ID, bad), ErrInvalidOTP, bad)
	}
}

func TestMFA_Disable(t *testing.T) {
	ctx := context.Background()

	t.Run("self", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "ada")
		enroll(t, env, u.ID)

		require.NoError(t, env.mfa.Disable(ctx, u.ID, ""))
		got := env.reload(t, u.ID)
		require.Equal(t, domain.MFADisabled, got.MFAState)
		require.Empty(t, got.MFASecret)
		require.Zero(t, got.MFALastStep)
		require.Contains(t, env.auditMessages(t), "info:ada:MFA disabled by "+u.ID)

		// Disabling twice is harmless.
		require.NoError(t, env.mfa.Disable(ctx, u.ID, u.ID))
	})

	t.Run("other without admin", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "ada")
		other := env.createUser(t, "bob")
		enroll(t, env, u.ID)

		err := env.mfa.Disable(ctx, u.ID, other.ID)
		require.ErrorIs(t, err, ErrForbidden)
		require.Equal(t, domain.MFAEnabledVerified, env.reload(t, u.ID).MFAState)
	})

	t.Run("admin revokes target session", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "ada")
		admin := env.createUser(t, "root", "admins")
		enroll(t, env, u.ID)

		pair, err := env.tokens.Issue(ctx, env.reload(t, u.ID))
		require.NoError(t, err)

		require.NoError(t, env.mfa.Disable(ctx, u.ID, admin.ID))
		require.Equal(t, domain.MFADisabled, env.reload(t, u.ID).MFAState)

		_, err = env.tokens.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("unknown executor", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "ada")
		require.ErrorIs(t, env.mfa.Disable(ctx, u.ID, "missing"), ErrUserNotFound)
	})
}

func TestMatchStep(t *testing.T) {
	t.Parallel()

	const secret = "JBSWY3DPEHPK3PXP"
	now := testEpoch
	step := currentStep(now)

	got, ok := matchStep(secret, codeAt(t, secret, now), now, 0)
	require.True(t, ok)
	require.Equal(t, step, got)

	_, ok = matchStep(secret, codeAt(t, secret, now), now, step)
	require.False(t, ok)

	_, ok = matchStep("", "123456", now, 0)
	require.False(t, ok)
}
