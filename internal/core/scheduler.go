package core

// scheduler.go runs background maintenance.
//
// The activity purge deletes feed entries older than the retention window.
// It runs once at start, then on every interval tick, until ctx is
// cancelled. A failed run is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PurgeConfig controls the activity purge job.
type PurgeConfig struct {
	RetentionDays int           // Entries older than this are deleted (default: 90)
	Interval      time.Duration // Time between runs (default: 24h)
}

func (c PurgeConfig) withDefaults() PurgeConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.Interval <= 0 {
		c.Interval = 24 * time.Hour
	}
	return c
}

// StartActivityPurge blocks running the purge job until ctx is cancelled.
// Run it in its own goroutine.
func (s *Service) StartActivityPurge(ctx context.Context, cfg PurgeConfig) {
	cfg = cfg.withDefaults()
	slog.Info("activity purge scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.Interval.String(),
	)

	s.runActivityPurge(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("activity purge scheduler stopped")
			return
		case <-ticker.C:
			s.runActivityPurge(ctx, cfg)
		}
	}
}

// runActivityPurge performs one purge and returns the number of deleted entries.
func (s *Service) runActivityPurge(ctx context.Context, cfg PurgeConfig) int64 {
	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.store.PurgeActivity(ctx, cutoff)
	if err != nil {
		slog.Error("activity purge failed", "error", err)
		return 0
	}

	slog.Info("activity purge completed",
		"entries_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
