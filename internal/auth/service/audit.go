package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/idx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultAuditListLimit = 100
	MaxAuditListLimit     = 1000
)

type AuditService struct {
	Store store.Store
	Clock clockwork.Clock
}

// Log appends an audit entry. Failures are logged and swallowed: an audit
// outage must not block a login.
func (s *AuditService) Log(ctx context.Context, user string, level domain.AuditLevel, message string) {
	if s == nil || s.Store == nil {
		return
	}
	now := clockOrReal(s.Clock).Now().UTC()
	entry := domain.AuditEntry{
		ID:        idx.NewAt(now).String(),
		User:      user,
		Level:     level,
		Message:   message,
		CreatedAt: now,
	}
	if err := s.Store.AuditLogs().CreateAuditEntry(ctx, entry); err != nil {
		slogx.FromContext(ctx).Error("audit write failed",
			slog.String("user", user),
			slog.String("level", string(level)),
			slog.Any("error", err),
		)
	}
}

func (s *AuditService) Info(ctx context.Context, user, message string) {
	s.Log(ctx, user, domain.AuditInfo, message)
}

func (s *AuditService) Warn(ctx context.Context, user, message string) {
	s.Log(ctx, user, domain.AuditWarn, message)
}

// List returns the newest entries. limit is clamped to [1, MaxAuditListLimit]
// with zero meaning DefaultAuditListLimit.
func (s *AuditService) List(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditListLimit
	case limit > MaxAuditListLimit:
		limit = MaxAuditListLimit
	}
	entries, err := s.Store.AuditLogs().ListAuditEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than retention.
func (s *AuditService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := clockOrReal(s.Clock).Now().Add(-retention)
	n, err := s.Store.AuditLogs().DeleteAuditEntriesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	return n, nil
}

func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
