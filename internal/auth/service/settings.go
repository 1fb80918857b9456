package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

type SettingsService struct {
	Store store.Store
	Audit *AuditService
	Clock clockwork.Clock
}

func (s *SettingsService) List(ctx context.Context) ([]domain.Setting, error) {
	out, err := s.Store.Settings().ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}

func (s *SettingsService) Get(ctx context.Context, key string) (domain.Setting, error) {
	return s.Store.Settings().GetSetting(ctx, key)
}

// Put inserts or replaces a setting.
func (s *SettingsService) Put(ctx context.Context, actor, key, value string) (domain.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 128 {
		return domain.Setting{}, invalidInput("setting key must be 1-128 characters")
	}
	st := domain.Setting{Key: key, Value: value, UpdatedAt: clockOrReal(s.Clock).Now().UTC()}
	if err := s.Store.Settings().PutSetting(ctx, st); err != nil {
		return domain.Setting{}, fmt.Errorf("put setting: %w", err)
	}
	s.Audit.Info(ctx, actor, fmt.Sprintf("Setting %s updated", key))
	return st, nil
}
