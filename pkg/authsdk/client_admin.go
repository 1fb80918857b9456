package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// The calls below need the admins role and a complete session.

func (c *SDKClient) ListUsers(ctx context.Context) ([]User, error) {
	var resp UsersResponse
	if err := c.call(ctx, http.MethodGet, "/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *SDKClient) GetUser(ctx context.Context, id string) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *SDKClient) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPost, "/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *SDKClient) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPut, "/users/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *SDKClient) DeleteUser(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

func (c *SDKClient) ListRoles(ctx context.Context) ([]Role, error) {
	var resp RolesResponse
	if err := c.call(ctx, http.MethodGet, "/roles", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (c *SDKClient) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	var role Role
	if err := c.call(ctx, http.MethodPost, "/roles", CreateRoleRequest{Name: name, Description: description}, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *SDKClient) DeleteRole(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, "/roles/"+url.PathEscape(name), nil, nil)
}

func (c *SDKClient) ListSettings(ctx context.Context) ([]Setting, error) {
	var resp SettingsResponse
	if err := c.call(ctx, http.MethodGet, "/settings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Settings, nil
}

func (c *SDKClient) PutSetting(ctx context.Context, key, value string) (*Setting, error) {
	var s Setting
	if err := c.call(ctx, http.MethodPut, "/settings/"+url.PathEscape(key), PutSettingRequest{Value: value}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAuditLogs returns the newest entries first. limit <= 0 uses the
// server default.
func (c *SDKClient) ListAuditLogs(ctx context.Context, limit int) ([]AuditEntry, error) {
	path := "/auditlogs"
	if limit > 0 {
		path = fmt.Sprintf("/auditlogs?limit=%d", limit)
	}
	var resp AuditLogsResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.AuditLogs, nil
}
