// Package cleanup runs the background retention loop described by
// config.RetentionConfig: deleting old terminal sessions, pruning stale
// preview versions, and expiring old events, grounded on the teacher's
// cleanup.Service (pkg/cleanup/service.go).
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/repository"
)

// EventPruner is the slice of events.Service this package depends on,
// declared locally so cleanup can be tested against a fake without a real
// Postgres connection.
type EventPruner interface {
	PruneOlderThan(ctx context.Context, cutoffUnix int64) (int, error)
}

// Service periodically enforces the three retention policies in
// config.RetentionConfig. All operations are idempotent and safe to run
// concurrently from multiple pods, since each is a bounded DELETE keyed on
// age or rank, not on any in-process state.
type Service struct {
	config   *config.RetentionConfig
	sessions repository.SessionRepository
	previews repository.PreviewRepository
	events   EventPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs a cleanup Service. Call Start to begin the loop.
// eventPruner may be nil, in which case event pruning is skipped.
func NewService(cfg *config.RetentionConfig, sessions repository.SessionRepository, previews repository.PreviewRepository, eventPruner EventPruner) *Service {
	return &Service{config: cfg, sessions: sessions, previews: previews, events: eventPruner}
}

// Start launches the background cleanup loop. Idempotent: a second call
// while already running is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"session_retention_days", s.config.SessionRetentionDays,
		"event_ttl", s.config.EventTTL,
		"preview_version_retention_count", s.config.PreviewVersionRetentionCount,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldSessions(ctx)
	s.pruneOldPreviews(ctx)
	s.pruneOldEvents(ctx)
}

func (s *Service) deleteOldSessions(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.SessionRetentionDays)
	count, err := s.sessions.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention: deleting old sessions failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted old terminal sessions", "count", count)
	}
}

func (s *Service) pruneOldPreviews(ctx context.Context) {
	count, err := s.previews.PruneOldVersions(ctx, s.config.PreviewVersionRetentionCount)
	if err != nil {
		slog.Error("retention: pruning preview versions failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: pruned old preview versions", "count", count)
	}
}

func (s *Service) pruneOldEvents(ctx context.Context) {
	if s.events == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.config.EventTTL).Unix()
	count, err := s.events.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: pruning events failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: pruned expired events", "count", count)
	}
}
