package domain

import (
	"slices"
	"time"
)

// Built-in role names. Every user holds at least DefaultRole.
const (
	AdminRole   = "admins"
	DefaultRole = "users"
)

type User struct {
	ID            string
	Name          string
	Username      string
	Email         string
	PasswordHash  string // argon2id PHC string
	Roles         []string
	EmailVerified bool
	AccountLocked bool
	LDAPEnabled   bool

	MFAState    MFAState
	MFAEnforced bool   // set by an administrator
	MFASecret   string // sealed TOTP secret, empty until enrollment starts
	MFALastStep int64  // step of the last accepted TOTP code, for replay protection

	// MFAAcceptedStep is the clock's step when that code was accepted. A
	// resubmission is only a harmless repeat within it.
	MFAAcceptedStep int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAEnabled is true once enrollment has completed.
func (u *User) MFAEnabled() bool { return u.MFAState.Enabled() }

// MFAVerified is true only while MFA is enabled and this session passed OTP.
func (u *User) MFAVerified() bool { return u.MFAState == MFAEnabledVerified }

func (u *User) HasRole(role string) bool { return slices.Contains(u.Roles, role) }

// LastOTP is the step pair stored with the last accepted code.
func (u *User) LastOTP() OTPStep {
	return OTPStep{Matched: u.MFALastStep, Accepted: u.MFAAcceptedStep}
}

// OTPStep records an accepted TOTP code: the step it matched and the step
// the clock was in when it was accepted. They differ by the allowed skew.
type OTPStep struct {
	Matched  int64
	Accepted int64
}

// NormalizeRoles sorts and de-duplicates roles, falling back to DefaultRole
// when none are given.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []string{DefaultRole}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
