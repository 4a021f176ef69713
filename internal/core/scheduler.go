package core

// scheduler.go purges expired jobs.
//
// Finished jobs are kept for the configured TTL after submission, then
// dropped so the job store does not grow without bound. Jobs still queued or
// being inspected are never purged. The scheduler is long-running
// and stops with its context; a failed purge is logged and retried on the
// next tick.

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	ResultTTL     time.Duration // How long jobs are kept (default: 24h)
	CheckInterval time.Duration // How often to purge (default: 1h)
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	return c
}

// StartCleanupScheduler purges expired jobs immediately and then every
// CheckInterval until ctx is cancelled. It blocks; run it in a goroutine.
func (s *Service) StartCleanupScheduler(ctx context.Context, cfg CleanupConfig) {
	cfg = cfg.withDefaults()
	slog.Info("cleanup scheduler started",
		"result_ttl", cfg.ResultTTL.String(),
		"interval", cfg.CheckInterval.String(),
	)

	s.runCleanup(cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.runCleanup(cfg)
		}
	}
}

// runCleanup performs one purge cycle and returns the number of jobs removed.
func (s *Service) runCleanup(cfg CleanupConfig) int {
	start := time.Now()
	cutoff := start.Add(-cfg.ResultTTL)

	purged, err := s.jobs.DeleteOlderThan(cutoff)
	if err != nil {
		slog.Error("job cleanup failed", "error", err)
		return 0
	}

	remaining, _ := s.jobs.Count()
	slog.Debug("job cleanup completed",
		"jobs_purged", purged,
		"jobs_remaining", remaining,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
