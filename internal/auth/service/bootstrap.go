package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

type BootstrapService struct {
	Store store.Store
	Clock clockwork.Clock
}

// Bootstrap seeds the built-in roles and any extra roles in req, then
// creates the admin user when credentials are given and no user exists yet.
// It is safe to run on every start. The admin id is empty when no admin was
// created.
func (s *BootstrapService) Bootstrap(ctx context.Context, req domain.BootstrapData) (string, error) {
	l := slogx.FromContext(ctx)
	now := clockOrReal(s.Clock).Now().UTC()

	roles := append(append([]domain.RoleDefinition(nil), domain.DefaultRoles...), req.Roles...)

	var passHash string
	if req.AdminUsername != "" && req.AdminPassword != "" {
		var err error
		if passHash, err = cryptox.HashPassword(req.AdminPassword); err != nil {
			return "", fmt.Errorf("hash admin password: %w", err)
		}
	}

	var adminID string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, def := range roles {
			_, err := tx.Roles().GetRoleByName(ctx, def.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("lookup role %s: %w", def.Name, err)
			}
			r := domain.Role{Name: def.Name, Description: def.Description, CreatedAt: now}
			if err := tx.Roles().CreateRole(ctx, r); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("create role %s: %w", def.Name, err)
			}
			l.Info("seeded role", slog.String("role", def.Name))
		}

		if passHash == "" {
			return nil
		}
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return fmt.Errorf("check users: %w", err)
		}
		if !empty {
			return nil
		}

		admin := domain.User{
			ID:            idx.NewAt(now).String(),
			Name:          req.AdminName,
			Username:      req.AdminUsername,
			Email:         req.AdminEmail,
			PasswordHash:  passHash,
			Roles:         domain.NormalizeRoles([]string{domain.AdminRole, domain.DefaultRole}),
			EmailVerified: true,
			MFAState:      domain.MFADisabled,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if admin.Name == "" {
			admin.Name = "Administrator"
		}
		if admin.Email == "" {
			admin.Email = admin.Username + "@localhost"
		}
		if err := tx.Users().CreateUser(ctx, admin); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		adminID = admin.ID
		return nil
	})
	if err != nil {
		l.Error("bootstrap failed", slog.Any("error", err))
		return "", err
	}

	if adminID != "" {
		l.Info("created admin user", slog.String("user_id", adminID), slog.String("username", req.AdminUsername))
	}
	return adminID, nil
}
