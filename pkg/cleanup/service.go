// Package cleanup enforces data retention in the background: sessions past
// the retention window are deleted (child rows cascade with them), sessions
// stuck in pending are failed as abandoned, and report files nothing
// references anymore are pruned from disk.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/weaveai/weaveai/pkg/config"
)

// Store is the slice of the persistence gateway retention drives.
// Implemented by store.Store.
type Store interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailStalePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReportPruner removes rendered report files older than the cutoff.
// Implemented by report.Renderer.
type ReportPruner interface {
	PruneOlderThan(cutoff time.Time) (int, error)
}

// Service periodically enforces retention policies:
//   - Fails sessions stuck in pending longer than StalePendingAge
//   - Deletes terminal sessions older than SessionRetentionDays
//   - Prunes report files older than the retention window
//
// All operations are idempotent and safe to repeat.
type Service struct {
	cfg     *config.RetentionConfig
	store   Store
	reports ReportPruner
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// NewService creates the retention service. reports may be nil, which
// disables file pruning.
func NewService(cfg *config.RetentionConfig, st Store, reports ReportPruner) *Service {
	if cfg == nil || st == nil {
		panic("cleanup.NewService: nil dependency")
	}
	return &Service{
		cfg:     cfg,
		store:   st,
		reports: reports,
		logger:  slog.Default().With("component", "cleanup"),
		now:     time.Now,
	}
}

// Start launches the background cleanup loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"session_retention_days", s.cfg.SessionRetentionDays,
		"stale_pending_age", s.cfg.StalePendingAge,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full retention pass: stale pending rows are failed first,
// then expired sessions and their report files are removed.
func (s *Service) Sweep(ctx context.Context) {
	s.failStalePending(ctx)
	s.deleteExpiredSessions(ctx)
	s.pruneReportFiles()
}

func (s *Service) failStalePending(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.StalePendingAge)
	count, err := s.store.FailStalePendingBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: stale pending sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: failed stale pending sessions", "count", count)
	}
}

func (s *Service) deleteExpiredSessions(ctx context.Context) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.SessionRetentionDays)
	count, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: session deletion failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: deleted expired sessions", "count", count)
	}
}

func (s *Service) pruneReportFiles() {
	if s.reports == nil {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.SessionRetentionDays)
	count, err := s.reports.PruneOlderThan(cutoff)
	if err != nil {
		s.logger.Error("Retention: report file pruning failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: pruned report files", "count", count)
	}
}
