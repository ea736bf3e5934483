package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// Service persists and broadcasts every lifecycle event the orchestrator
// emits. It implements orchestrator.EventSink structurally: each method
// swallows its own error (logging it instead) since an event emission must
// never fail the phase or session it is reporting on.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service over pool (typically client.Pool() from a
// repository.Client, so events share the same connection pool as the
// aggregate repositories).
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) PhaseStarted(ctx context.Context, sessionID string, phase int) {
	s.emit(ctx, sessionID, EventTypePhaseStarted, map[string]any{"phase": phase})
}

func (s *Service) PhaseCompleted(ctx context.Context, sessionID string, phase int, score pipeline.QualityScore) {
	s.emit(ctx, sessionID, EventTypePhaseCompleted, map[string]any{
		"phase":   phase,
		"quality": score,
	})
}

func (s *Service) PhaseFailed(ctx context.Context, sessionID string, phase int, errMsg string) {
	s.emit(ctx, sessionID, EventTypePhaseFailed, map[string]any{
		"phase": phase,
		"error": errMsg,
	})
}

func (s *Service) FeedbackRequested(ctx context.Context, sessionID string, phase int, preview map[string]any) {
	s.emit(ctx, sessionID, EventTypeFeedbackRequested, map[string]any{
		"phase":   phase,
		"preview": preview,
	})
}

func (s *Service) SessionCompleted(ctx context.Context, sessionID string) {
	s.emit(ctx, sessionID, EventTypeSessionCompleted, map[string]any{})
}

func (s *Service) SessionFailed(ctx context.Context, sessionID string, errMsg string) {
	s.emit(ctx, sessionID, EventTypeSessionFailed, map[string]any{"error": errMsg})
}

func (s *Service) SessionCancelled(ctx context.Context, sessionID string) {
	s.emit(ctx, sessionID, EventTypeSessionCancelled, map[string]any{})
}

// emit marshals fields into a full event envelope and persists+notifies it,
// logging (never propagating) any failure.
func (s *Service) emit(ctx context.Context, sessionID, eventType string, fields map[string]any) {
	envelope := map[string]any{
		"type":       eventType,
		"session_id": sessionID,
	}
	for k, v := range fields {
		envelope[k] = v
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("marshaling event payload", "event_type", eventType, "session_id", sessionID, "error", err)
		return
	}
	if err := s.persistAndNotify(ctx, sessionID, eventType, payloadJSON); err != nil {
		slog.Warn("publishing event", "event_type", eventType, "session_id", sessionID, "error", err)
	}
}

// persistAndNotify inserts the event row and calls pg_notify in one
// transaction, so a NOTIFY a disconnected listener misses is never silently
// lost: the row in session_events is always the source of truth, and any
// replica can catch up by polling it.
func (s *Service) persistAndNotify(ctx context.Context, sessionID, eventType string, payloadJSON []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var eventID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO session_events (session_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, sessionID, eventType, payloadJSON).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persisting event: %w", err)
	}

	notifyPayload, err := injectEventID(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", GlobalChannel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing event transaction: %w", err)
	}
	return nil
}

// notifyPayloadLimit is the safety margin under PostgreSQL's 8000-byte
// NOTIFY payload ceiling.
const notifyPayloadLimit = 7900

// injectEventID adds db_event_id to the JSON payload for catch-up polling,
// falling back to a minimal routing envelope if the enriched payload would
// exceed PostgreSQL's NOTIFY size limit.
func injectEventID(payloadJSON []byte, eventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("unmarshaling payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = eventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling enriched notify payload: %w", err)
	}
	if len(enriched) <= notifyPayloadLimit {
		return string(enriched), nil
	}

	truncated := map[string]any{
		"type":        m["type"],
		"session_id":  m["session_id"],
		"db_event_id": eventID,
		"truncated":   true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshaling truncated notify payload: %w", err)
	}
	return string(truncBytes), nil
}

// PruneOlderThan deletes session_events rows older than ttl's cutoff, for
// the retention service's EventTTL policy. Unlike session/content retention,
// this prunes unconditionally on age regardless of the owning session's
// status, since events are an append-only audit log, not pipeline state.
func (s *Service) PruneOlderThan(ctx context.Context, cutoffUnix int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM session_events WHERE created_at < to_timestamp($1)`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("pruning session events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
