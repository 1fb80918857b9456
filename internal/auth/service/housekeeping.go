package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultHousekeepingInterval = time.Hour
	DefaultAuditRetention       = 90 * 24 * time.Hour
)

// HousekeepingService periodically removes expired refresh tokens and audit
// entries past their retention.
type HousekeepingService struct {
	Store          store.Store
	Logger         *slog.Logger
	Interval       time.Duration
	AuditRetention time.Duration
	Clock          clockwork.Clock
	Metrics        *metrics.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	return &HousekeepingService{
		Store:          store,
		Logger:         logger,
		Interval:       interval,
		AuditRetention: DefaultAuditRetention,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "audit_retention", s.AuditRetention)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := clockOrReal(s.Clock).NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.Chan():
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each deletion independently; one failing does not skip the
// others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := clockOrReal(s.Clock).Now()

	tokens, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	} else {
		s.Metrics.Housekeeping("refresh_tokens", tokens)
	}

	var entries int64
	if s.AuditRetention > 0 {
		entries, err = s.Store.AuditLogs().DeleteAuditEntriesBefore(ctx, now.Add(-s.AuditRetention))
		if err != nil {
			s.Logger.Error("failed to prune audit entries", "error", err)
		} else {
			s.Metrics.Housekeeping("audit_logs", entries)
		}
	}

	s.Logger.Info("housekeeping cleanup completed", "refresh_tokens", tokens, "audit_entries", entries)
}
