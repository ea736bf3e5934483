package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// PgFeedbackRepository is a pgx-backed FeedbackRepository.
type PgFeedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository constructs a PgFeedbackRepository over client's pool.
func NewFeedbackRepository(client *Client) *PgFeedbackRepository {
	return &PgFeedbackRepository{pool: client.pool}
}

// Create persists one SubmitFeedback call for audit and ApplyFeedback replay.
func (r *PgFeedbackRepository) Create(ctx context.Context, f *pipeline.FeedbackRecord) error {
	payloadJSON, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("marshaling feedback payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO feedback_records (id, session_id, phase_number, approved, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.SessionID, f.PhaseNumber, f.Approved, payloadJSON, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback record: %w", err)
	}
	return nil
}

func (r *PgFeedbackRepository) ListByPhase(ctx context.Context, sessionID string, phaseNumber int) ([]*pipeline.FeedbackRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, phase_number, approved, payload, created_at
		FROM feedback_records WHERE session_id = $1 AND phase_number = $2
		ORDER BY created_at ASC
	`, sessionID, phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("listing feedback records: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.FeedbackRecord
	for rows.Next() {
		var (
			id, sID     string
			phaseNum    int
			approved    bool
			payloadJSON []byte
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &sID, &phaseNum, &approved, &payloadJSON, &createdAt); err != nil {
			return nil, err
		}
		var payload map[string]any
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &payload); err != nil {
				return nil, fmt.Errorf("unmarshaling feedback payload: %w", err)
			}
		}
		out = append(out, &pipeline.FeedbackRecord{
			ID:          id,
			SessionID:   sID,
			PhaseNumber: phaseNum,
			Approved:    approved,
			Payload:     payload,
			CreatedAt:   createdAt,
		})
	}
	return out, rows.Err()
}
