// Package repository persists the pipeline domain model (pkg/pipeline) to
// PostgreSQL via pgx, and provides in-memory fakes (see the memory
// subpackage) for tests that don't need a real database.
package repository

import (
	"context"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// SessionRepository persists Session rows and supports the atomic
// claim-next-queued operation the supervisor's poller drives.
type SessionRepository interface {
	Create(ctx context.Context, s *pipeline.Session) error
	Get(ctx context.Context, id string) (*pipeline.Session, error)
	Update(ctx context.Context, s *pipeline.Session) error
	ListByStatus(ctx context.Context, status pipeline.Status, limit int) ([]*pipeline.Session, error)

	// ClaimNextQueued atomically selects and claims the oldest queued
	// session for the given worker, using SELECT ... FOR UPDATE SKIP LOCKED
	// so concurrent workers never double-claim. Returns ErrNotFound (wrapped
	// via pipeline.ErrNotFound) if no session is queued.
	ClaimNextQueued(ctx context.Context, claimedBy string) (*pipeline.Session, error)

	// Heartbeat refreshes last_heartbeat_at for a session this worker owns.
	Heartbeat(ctx context.Context, id string) error

	// ListOrphaned returns processing sessions whose last heartbeat is older
	// than the given threshold, for the supervisor's orphan sweep.
	ListOrphaned(ctx context.Context, olderThan int64) ([]*pipeline.Session, error)

	// DeleteTerminalBefore permanently deletes sessions in a terminal status
	// (completed, failed, cancelled) whose UpdatedAt predates
	// cutoff, cascading to their PhaseResults/GeneratedContent/PreviewVersions/
	// FeedbackRecords, for the retention/cleanup service (spec §3's "destroyed
	// only by explicit delete or TTL sweep after completedAt + retention").
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// PhaseResultRepository persists per-phase execution records.
type PhaseResultRepository interface {
	Upsert(ctx context.Context, r *pipeline.PhaseResult) error
	Get(ctx context.Context, sessionID string, phaseNumber int) (*pipeline.PhaseResult, error)
	ListBySession(ctx context.Context, sessionID string) ([]*pipeline.PhaseResult, error)
}

// ContentRepository persists deduplicated GeneratedContent rows. Create is
// idempotent on the (SessionID, PhaseNumber, ContentType, ContentHash) key:
// a colliding insert returns the existing row instead of erroring.
type ContentRepository interface {
	Create(ctx context.Context, c *pipeline.GeneratedContent) (*pipeline.GeneratedContent, error)
	Get(ctx context.Context, id string) (*pipeline.GeneratedContent, error)
	FindByHash(ctx context.Context, sessionID string, phaseNumber int, contentType pipeline.ContentType, contentHash string) (*pipeline.GeneratedContent, error)
	ListBySession(ctx context.Context, sessionID string) ([]*pipeline.GeneratedContent, error)
	UpdateStatus(ctx context.Context, id string, status pipeline.GeneratedContentStatus) error
}

// PreviewRepository persists HITL preview versions.
type PreviewRepository interface {
	Create(ctx context.Context, p *pipeline.PreviewVersion) error
	LatestForPhase(ctx context.Context, sessionID string, phaseNumber int) (*pipeline.PreviewVersion, error)
	ListBySession(ctx context.Context, sessionID string) ([]*pipeline.PreviewVersion, error)

	// PruneOldVersions deletes all but the keep most recent preview versions
	// per (session, phase), for the retention service's
	// PreviewVersionRetentionCount policy.
	PruneOldVersions(ctx context.Context, keep int) (int, error)
}

// FeedbackRepository persists SubmitFeedback audit records.
type FeedbackRepository interface {
	Create(ctx context.Context, f *pipeline.FeedbackRecord) error
	ListByPhase(ctx context.Context, sessionID string, phaseNumber int) ([]*pipeline.FeedbackRecord, error)
}
