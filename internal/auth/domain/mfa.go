package domain

import (
	"errors"
	"fmt"
)

// MFAState is the single source of truth for a user's second factor. The
// booleans exposed in tokens are derived from it.
type MFAState string

const (
	MFADisabled          MFAState = "disabled"
	MFAPendingEnrollment MFAState = "pending_enrollment"
	MFAEnabledUnverified MFAState = "enabled_unverified"
	MFAEnabledVerified   MFAState = "enabled_verified"
)

var (
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	ErrMFANotPending     = errors.New("mfa enrollment not started")
	ErrMFANotEnabled     = errors.New("mfa not enabled")
)

// ParseMFAState accepts the persisted text form. An empty string reads as
// disabled so rows written before MFA existed stay valid.
func ParseMFAState(s string) (MFAState, error) {
	switch st := MFAState(s); st {
	case MFADisabled, MFAPendingEnrollment, MFAEnabledUnverified, MFAEnabledVerified:
		return st, nil
	case "":
		return MFADisabled, nil
	default:
		return "", fmt.Errorf("unknown mfa state %q", s)
	}
}

func (s MFAState) String() string { return string(s) }

func (s MFAState) Enabled() bool {
	return s == MFAEnabledUnverified || s == MFAEnabledVerified
}

// StartEnrollment moves into pending. Restarting while pending is allowed
// and means a fresh secret.
func (s MFAState) StartEnrollment() (MFAState, error) {
	if s.Enabled() {
		return s, ErrMFAAlreadyEnabled
	}
	return MFAPendingEnrollment, nil
}

// FinishEnrollment is valid only from pending. The OTP that completed it
// also counts as this session's verification.
func (s MFAState) FinishEnrollment() (MFAState, error) {
	if s != MFAPendingEnrollment {
		if s.Enabled() {
			return s, ErrMFAAlreadyEnabled
		}
		return s, ErrMFANotPending
	}
	return MFAEnabledVerified, nil
}

func (s MFAState) VerifyLogin() (MFAState, error) {
	if !s.Enabled() {
		return s, ErrMFANotEnabled
	}
	return MFAEnabledVerified, nil
}

// NewSession is applied at every password login: a verified session from
// before does not carry over.
func (s MFAState) NewSession() MFAState {
	if s == MFAEnabledVerified {
		return MFAEnabledUnverified
	}
	return s
}

func (s MFAState) Disable() MFAState { return MFADisabled }
