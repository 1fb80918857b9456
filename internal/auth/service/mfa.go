package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
	totpSkew   = 1 // steps either side of now
)

// MFAService drives the TOTP state machine. Secrets are stored sealed.
type MFAService struct {
	Store   store.Store
	Audit   *AuditService
	Sealer  *cryptox.Sealer
	Issuer  string // shown in authenticator apps
	Clock   clockwork.Clock
	Metrics *metrics.Metrics
}

// Enrollment is what the client needs to configure an authenticator.
type Enrollment struct {
	Secret string // base32
	URL    string // otpauth:// URI
}

// StartEnrollment generates a new secret and moves the user to pending.
// Calling it again while pending replaces the secret.
func (s *MFAService) StartEnrollment(ctx context.Context, userID string) (Enrollment, error) {
	user, err := loadUser(ctx, s.Store.Users(), userID)
	if err != nil {
		return Enrollment{}, err
	}
	next, err := user.MFAState.StartEnrollment()
	if err != nil {
		s.Metrics.MFA("start", "rejected")
		return Enrollment{}, mapMFAError(err)
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	sealed, err := s.Sealer.Seal(key.Secret())
	if err != nil {
		return Enrollment{}, fmt.Errorf("seal totp secret: %w", err)
	}
	if err := s.Store.Users().UpdateMFA(ctx, user.ID, next, sealed, domain.OTPStep{}); err != nil {
		return Enrollment{}, fmt.Errorf("store pending mfa: %w", err)
	}

	s.Metrics.MFA("start", "ok")
	s.Audit.Info(ctx, user.Username, "MFA enrollment started")
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// FinishEnrollment checks code against the pending secret and enables MFA.
// The session that enrolled counts as verified.
func (s *MFAService) FinishEnrollment(ctx context.Context, userID, code string) error {
	return s.acceptCode(ctx, "finish", userID, code, domain.MFAState.FinishEnrollment, "MFA enrollment completed")
}

// VerifyLogin checks code against the enabled secret and marks the session
// verified.
func (s *MFAService) VerifyLogin(ctx context.Context, userID, code string) error {
	return s.acceptCode(ctx, "verify", userID, code, domain.MFAState.VerifyLogin, "MFA login verified")
}

type codeOutcome int

const (
	codeAccepted codeOutcome = iota
	codeRepeated
	codeRejected
)

// acceptCode is shared by finish and verify. The read, the replay check and
// the write happen in one transaction so two submissions of the same code
// cannot both advance the state.
func (s *MFAService) acceptCode(
	ctx context.Context,
	event, userID, code string,
	transition func(domain.MFAState) (domain.MFAState, error),
	auditMessage string,
) error {
	l := slogx.FromContext(ctx)
	now := clockOrReal(s.Clock).Now()

	var (
		user    domain.User
		outcome codeOutcome
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = loadUser(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}

		next, terr := transition(user.MFAState)
		secret, err := s.openSecret(user)
		if err != nil {
			return err
		}
		if terr != nil {
			if secret != "" && s.isRepeat(user, secret, code, now) {
				outcome = codeRepeated
				return nil
			}
			return mapMFAError(terr)
		}

		step, ok := matchStep(secret, code, now, user.MFALastStep)
		if !ok {
			if s.isRepeat(user, secret, code, now) {
				outcome = codeRepeated
				return nil
			}
			outcome = codeRejected
			return nil
		}

		outcome = codeAccepted
		return tx.Users().UpdateMFA(ctx, user.ID, next, user.MFASecret,
			domain.OTPStep{Matched: step, Accepted: currentStep(now)})
	})
	if err != nil {
		s.Metrics.MFA(event, "rejected")
		return err
	}

	switch outcome {
	case codeRejected:
		l.Info("otp rejected", slog.String("user_id", user.ID), slog.String("event", event))
		s.Metrics.MFA(event, "invalid_otp")
		s.Audit.Warn(ctx, user.Username, "Invalid OTP submitted")
		return ErrInvalidOTP
	case codeRepeated:
		s.Metrics.MFA(event, "repeat")
		return nil
	default:
		s.Metrics.MFA(event, "ok")
		s.Audit.Info(ctx, user.Username, auditMessage)
		return nil
	}
}

// isRepeat reports a resubmission of the code that already moved the user
// to enabled_verified, made before the clock left the step it was accepted
// in. The code may have matched a neighbouring step. Anything else is a
// replay.
func (s *MFAService) isRepeat(user domain.User, secret, code string, now time.Time) bool {
	if user.MFAState != domain.MFAEnabledVerified {
		return false
	}
	if currentStep(now) != user.MFAAcceptedStep {
		return false
	}
	return codeAtStep(secret, code, user.MFALastStep)
}

func (s *MFAService) openSecret(user domain.User) (string, error) {
	if user.MFASecret == "" {
		return "", nil
	}
	secret, err := s.Sealer.Open(user.MFASecret)
	if err != nil {
		return "", fmt.Errorf("open totp secret: %w", err)
	}
	return secret, nil
}

// Disable turns MFA off for userID. A user may always disable their own;
// disabling someone else needs the admin role and also revokes the target's
// refresh token so their next request forces a login.
func (s *MFAService) Disable(ctx context.Context, userID, execUserID string) error {
	if execUserID == "" {
		execUserID = userID
	}

	var target domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if execUserID != userID {
			exec, err := loadUser(ctx, tx.Users(), execUserID)
			if err != nil {
				return err
			}
			if !exec.HasRole(domain.AdminRole) {
				return ErrForbidden
			}
		}

		var err error
		target, err = loadUser(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}
		if err := tx.Users().UpdateMFA(ctx, target.ID, target.MFAState.Disable(), "", domain.OTPStep{}); err != nil {
			return fmt.Errorf("disable mfa: %w", err)
		}
		if execUserID != userID {
			if err := tx.RefreshTokens().DeleteUserRefreshTokens(ctx, target.ID); err != nil {
				return fmt.Errorf("revoke refresh token: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.Metrics.MFA("disable", "rejected")
		return err
	}

	s.Metrics.MFA("disable", "ok")
	s.Audit.Info(ctx, target.Username, fmt.Sprintf("MFA disabled by %s", execUserID))
	return nil
}

func currentStep(now time.Time) int64 { return now.Unix() / totpPeriod }

// matchStep looks for code in the steps around now and returns the first
// match newer than lastStep. Every candidate is computed so timing does not
// depend on which step matched.
func matchStep(secret, code string, now time.Time, lastStep int64) (int64, bool) {
	if secret == "" || len(code) != totpDigits.Length() {
		return 0, false
	}
	var (
		matched int64
		found   bool
	)
	base := currentStep(now)
	for d := int64(-totpSkew); d <= totpSkew; d++ {
		step := base + d
		if codeAtStep(secret, code, step) && step > lastStep && !found {
			matched, found = step, true
		}
	}
	return matched, found
}

func codeAtStep(secret, code string, step int64) bool {
	want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1
}
