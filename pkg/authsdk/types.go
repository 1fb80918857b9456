package authsdk

import (
	"slices"
	"time"
)

// ErrorResponse is the wire form of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// User is the user object returned by login, refresh and the admin API. The
// MFA fields mirror the token claims.
type User struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Roles         []string  `json:"roles"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	MFAEnforced   bool      `json:"mfaEnforced"`
	MFAVerified   bool      `json:"mfaVerified"`
	MFAState      string    `json:"mfaState,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	AccountLocked bool      `json:"accountLocked"`
	LDAPEnabled   bool      `json:"ldapEnabled"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
}

// HasRole reports exact membership.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// UserResponse is returned by login, refresh and the MFA endpoints that
// re-issue tokens.
type UserResponse struct {
	User    User   `json:"user"`
	Message string `json:"message,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type MFASetupRequest struct {
	ID string `json:"_id,omitempty"`
}

type MFASetupResponse struct {
	Base32 string `json:"base32"`
	OTPURL string `json:"otpUrl"`
}

type MFATokenRequest struct {
	ID    string `json:"_id,omitempty"`
	Token string `json:"token"`
}

type DisableMFARequest struct {
	ID         string `json:"_id,omitempty"`
	ExecUserID string `json:"execUserId,omitempty"`
}

type CreateUserRequest struct {
	Name          string   `json:"name"`
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Roles         []string `json:"roles,omitempty"`
	MFAEnforced   bool     `json:"mfaEnforced"`
	EmailVerified bool     `json:"emailVerified"`
}

// UpdateUserRequest only changes the fields that are set.
type UpdateUserRequest struct {
	Name          *string  `json:"name,omitempty"`
	Email         *string  `json:"email,omitempty"`
	Password      *string  `json:"password,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	MFAEnforced   *bool    `json:"mfaEnforced,omitempty"`
	EmailVerified *bool    `json:"emailVerified,omitempty"`
	AccountLocked *bool    `json:"accountLocked,omitempty"`
}

type UsersResponse struct {
	Users []User `json:"users"`
}

type Role struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RolesResponse struct {
	Roles []Role `json:"roles"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

type PutSettingRequest struct {
	Value string `json:"value"`
}

type SettingsResponse struct {
	Settings []Setting `json:"settings"`
}

type AuditEntry struct {
	ID        string    `json:"_id"`
	User      string    `json:"user"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuditLogsResponse struct {
	AuditLogs []AuditEntry `json:"auditLogs"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
