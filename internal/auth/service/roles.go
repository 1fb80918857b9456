package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

type RolesService struct {
	Store store.Store
	Audit *AuditService
	Clock clockwork.Clock
}

// ListAll returns all roles in the system.
func (s *RolesService) ListAll(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *RolesService) Create(ctx context.Context, actor, name, description string) (domain.Role, error) {
	if !roleNamePattern.MatchString(name) {
		return domain.Role{}, invalidInput("role name must be lowercase letters, digits, '-' or '_'")
	}
	r := domain.Role{Name: name, Description: description, CreatedAt: clockOrReal(s.Clock).Now().UTC()}
	if err := s.Store.Roles().CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Role{}, fmt.Errorf("%w: role %q exists", ErrConflict, name)
		}
		return domain.Role{}, fmt.Errorf("create role: %w", err)
	}
	s.Audit.Info(ctx, actor, fmt.Sprintf("Role %s created", name))
	return r, nil
}

// Delete removes a role. Built-in roles and roles still held by a user
// cannot be deleted.
func (s *RolesService) Delete(ctx context.Context, actor, name string) error {
	if name == domain.AdminRole || name == domain.DefaultRole {
		return invalidInput("role %q is built in", name)
	}
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.HasRole(name) {
			return fmt.Errorf("%w: role %q is assigned to %s", ErrConflict, name, u.Username)
		}
	}
	if err := s.Store.Roles().DeleteRole(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: role %q", store.ErrNotFound, name)
		}
		return fmt.Errorf("delete role: %w", err)
	}
	s.Audit.Info(ctx, actor, fmt.Sprintf("Role %s deleted", name))
	return nil
}
