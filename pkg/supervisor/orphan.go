package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// orphanState tracks orphan-sweep metrics (thread-safe).
type orphanState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runOrphanDetection periodically scans for processing sessions whose
// heartbeat has gone stale past OrphanThreshold and fails them. All
// replicas run this independently; failing an already-failed session is a
// harmless no-op via Repos.Sessions.Update's status overwrite.
func (p *Pool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

func (p *Pool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.cfg.OrphanThreshold).Unix()

	orphans, err := p.sessions.ListOrphaned(ctx, threshold)
	if err != nil {
		return fmt.Errorf("querying orphaned sessions: %w", err)
	}

	p.orphans.mu.Lock()
	p.orphans.lastScan = time.Now()
	p.orphans.mu.Unlock()

	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("detected orphaned sessions", "count", len(orphans))
	recovered := 0
	for _, session := range orphans {
		if err := p.recoverOrphan(ctx, session); err != nil {
			slog.Error("failed to recover orphaned session", "session_id", session.ID, "error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.recovered += recovered
	p.orphans.mu.Unlock()
	return nil
}

func (p *Pool) recoverOrphan(ctx context.Context, session *pipeline.Session) error {
	reason := fmt.Sprintf("orphaned: no heartbeat since %s", session.UpdatedAt.Format(time.RFC3339))
	session.Fail(reason)
	if err := p.sessions.Update(ctx, session); err != nil {
		return err
	}
	slog.Warn("orphaned session marked failed", "session_id", session.ID)
	return nil
}
