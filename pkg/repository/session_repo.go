package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// PgSessionRepository is a pgx-backed SessionRepository.
type PgSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository constructs a PgSessionRepository over client's pool.
func NewSessionRepository(client *Client) *PgSessionRepository {
	return &PgSessionRepository{pool: client.pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, s *pipeline.Session) error {
	paramsJSON, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, title, input_text, params, status, current_phase,
			hitl_enabled, created_at, updated_at, started_at, completed_at, retry_count, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, s.ID, s.UserID, s.Title, s.InputText, paramsJSON, string(s.Status), s.CurrentPhase,
		s.HITLEnabled, s.CreatedAt, s.UpdatedAt, s.StartedAt, s.CompletedAt, s.RetryCount, s.ErrorMessage)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (r *PgSessionRepository) Get(ctx context.Context, id string) (*pipeline.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, input_text, params, status, current_phase, hitl_enabled,
			created_at, updated_at, started_at, completed_at, retry_count, error_message
		FROM sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return s, nil
}

func (r *PgSessionRepository) Update(ctx context.Context, s *pipeline.Session) error {
	paramsJSON, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET title = $2, status = $3, current_phase = $4, hitl_enabled = $5,
			updated_at = $6, started_at = $7, completed_at = $8, retry_count = $9,
			error_message = $10, params = $11
		WHERE id = $1
	`, s.ID, s.Title, string(s.Status), s.CurrentPhase, s.HITLEnabled, s.UpdatedAt,
		s.StartedAt, s.CompletedAt, s.RetryCount, s.ErrorMessage, paramsJSON)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

// ListByStatus returns sessions in status, oldest first. limit <= 0 means
// unlimited.
func (r *PgSessionRepository) ListByStatus(ctx context.Context, status pipeline.Status, limit int) ([]*pipeline.Session, error) {
	query := `
		SELECT id, user_id, title, input_text, params, status, current_phase, hitl_enabled,
			created_at, updated_at, started_at, completed_at, retry_count, error_message
		FROM sessions WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions by status: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ClaimNextQueued atomically claims the oldest queued session for claimedBy,
// using SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never
// collide on the same row.
func (r *PgSessionRepository) ClaimNextQueued(ctx context.Context, claimedBy string) (*pipeline.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, user_id, title, input_text, params, status, current_phase, hitl_enabled,
			created_at, updated_at, started_at, completed_at, retry_count, error_message
		FROM sessions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(pipeline.StatusQueued))

	s, err := scanSession(row)
	if err != nil {
		return nil, mapNotFound(err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET status = $2, started_at = $3, updated_at = $3, current_phase = 1,
			claimed_by = $4, last_heartbeat_at = $3
		WHERE id = $1
	`, s.ID, string(pipeline.StatusProcessing), now, claimedBy)
	if err != nil {
		return nil, fmt.Errorf("claiming session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	s.Start()
	return s, nil
}

// Heartbeat refreshes last_heartbeat_at for a session this worker owns.
func (r *PgSessionRepository) Heartbeat(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_heartbeat_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}
	return nil
}

// ListOrphaned returns processing sessions whose last heartbeat predates
// olderThan (a Unix second timestamp), for the supervisor's sweep.
func (r *PgSessionRepository) ListOrphaned(ctx context.Context, olderThan int64) ([]*pipeline.Session, error) {
	cutoff := time.Unix(olderThan, 0).UTC()
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, input_text, params, status, current_phase, hitl_enabled,
			created_at, updated_at, started_at, completed_at, retry_count, error_message
		FROM sessions
		WHERE status = $1 AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $2)
		ORDER BY last_heartbeat_at ASC NULLS FIRST
	`, string(pipeline.StatusProcessing), cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// DeleteTerminalBefore deletes sessions in a terminal status whose
// updated_at predates cutoff. Child rows (phase_results, generated_content,
// preview_versions, feedback_records) cascade via their foreign keys.
func (r *PgSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE status IN ($1, $2, $3) AND updated_at < $4
	`, string(pipeline.StatusCompleted), string(pipeline.StatusFailed), string(pipeline.StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting terminal sessions before cutoff: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*pipeline.Session, error) {
	var (
		id, userID, title, inputText, status string
		paramsJSON                           []byte
		currentPhase, retryCount              int
		hitlEnabled                           bool
		createdAt, updatedAt                  time.Time
		startedAt, completedAt                *time.Time
		errorMessage                          string
	)
	if err := row.Scan(&id, &userID, &title, &inputText, &paramsJSON, &status, &currentPhase,
		&hitlEnabled, &createdAt, &updatedAt, &startedAt, &completedAt, &retryCount, &errorMessage); err != nil {
		return nil, err
	}

	var params pipeline.GenerationParameters
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("unmarshaling session params: %w", err)
		}
	}

	s := pipeline.NewSession(id, userID, title, inputText, params)
	s.Status = pipeline.Status(status)
	s.CurrentPhase = currentPhase
	s.HITLEnabled = hitlEnabled
	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt
	s.StartedAt = startedAt
	s.CompletedAt = completedAt
	s.RetryCount = retryCount
	s.ErrorMessage = errorMessage
	return s, nil
}

func scanSessions(rows pgx.Rows) ([]*pipeline.Session, error) {
	var out []*pipeline.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
