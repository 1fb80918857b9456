package http

import (
	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
)

func toSDKUser(u domain.User) authsdk.User {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return authsdk.User{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		Email:         u.Email,
		Roles:         roles,
		MFAEnabled:    u.MFAEnabled(),
		MFAEnforced:   u.MFAEnforced,
		MFAVerified:   u.MFAVerified(),
		MFAState:      u.MFAState.String(),
		EmailVerified: u.EmailVerified,
		AccountLocked: u.AccountLocked,
		LDAPEnabled:   u.LDAPEnabled,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func toSDKUsers(us []domain.User) []authsdk.User {
	out := make([]authsdk.User, 0, len(us))
	for _, u := range us {
		out = append(out, toSDKUser(u))
	}
	return out
}

func toSDKRole(r domain.Role) authsdk.Role {
	return authsdk.Role{Name: r.Name, Description: r.Description, CreatedAt: r.CreatedAt}
}

func toSDKSetting(s domain.Setting) authsdk.Setting {
	return authsdk.Setting{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt}
}

func toSDKAuditEntry(e domain.AuditEntry) authsdk.AuditEntry {
	return authsdk.AuditEntry{
		ID:        e.ID,
		User:      e.User,
		Level:     string(e.Level),
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
}
