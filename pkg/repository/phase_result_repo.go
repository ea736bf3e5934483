package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// PgPhaseResultRepository is a pgx-backed PhaseResultRepository.
type PgPhaseResultRepository struct {
	pool *pgxpool.Pool
}

// NewPhaseResultRepository constructs a PgPhaseResultRepository over client's pool.
func NewPhaseResultRepository(client *Client) *PgPhaseResultRepository {
	return &PgPhaseResultRepository{pool: client.pool}
}

// Upsert inserts or replaces the PhaseResult for (SessionID, PhaseNumber),
// enforcing the at-most-one-live-result-per-phase invariant via the unique
// constraint on that pair.
func (r *PgPhaseResultRepository) Upsert(ctx context.Context, res *pipeline.PhaseResult) error {
	outputJSON, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Errorf("marshaling phase output: %w", err)
	}
	var scoreJSON []byte
	if res.QualityScore != nil {
		scoreJSON, err = json.Marshal(res.QualityScore)
		if err != nil {
			return fmt.Errorf("marshaling quality score: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO phase_results (id, session_id, phase_number, status, output, quality_score,
			processing_duration_millis, retry_count, error_message, started_at, completed_at, ai_assisted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id, phase_number) DO UPDATE SET
			id = EXCLUDED.id,
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			quality_score = EXCLUDED.quality_score,
			processing_duration_millis = EXCLUDED.processing_duration_millis,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			ai_assisted = EXCLUDED.ai_assisted
	`, res.ID, res.SessionID, res.PhaseNumber, string(res.Status), outputJSON, scoreJSON,
		res.ProcessingDurationMillis, res.RetryCount, res.ErrorMessage, res.StartedAt, res.CompletedAt, res.AIAssisted)
	if err != nil {
		return fmt.Errorf("upserting phase result: %w", err)
	}
	return nil
}

func (r *PgPhaseResultRepository) Get(ctx context.Context, sessionID string, phaseNumber int) (*pipeline.PhaseResult, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, phase_number, status, output, quality_score,
			processing_duration_millis, retry_count, error_message, started_at, completed_at, ai_assisted
		FROM phase_results WHERE session_id = $1 AND phase_number = $2
	`, sessionID, phaseNumber)
	res, err := scanPhaseResult(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return res, nil
}

func (r *PgPhaseResultRepository) ListBySession(ctx context.Context, sessionID string) ([]*pipeline.PhaseResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, phase_number, status, output, quality_score,
			processing_duration_millis, retry_count, error_message, started_at, completed_at, ai_assisted
		FROM phase_results WHERE session_id = $1 ORDER BY phase_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing phase results: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.PhaseResult
	for rows.Next() {
		res, err := scanPhaseResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanPhaseResult(row rowScanner) (*pipeline.PhaseResult, error) {
	var (
		id, sessionID, status   string
		phaseNumber             int
		outputJSON              []byte
		scoreJSON               []byte
		durationMillis          int64
		retryCount              int
		errorMessage            string
		startedAt, completedAt  *time.Time
		aiAssisted              bool
	)
	if err := row.Scan(&id, &sessionID, &phaseNumber, &status, &outputJSON, &scoreJSON,
		&durationMillis, &retryCount, &errorMessage, &startedAt, &completedAt, &aiAssisted); err != nil {
		return nil, err
	}

	var output pipeline.PhaseOutput
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &output); err != nil {
			return nil, fmt.Errorf("unmarshaling phase output: %w", err)
		}
	}
	var score *pipeline.QualityScore
	if len(scoreJSON) > 0 {
		score = &pipeline.QualityScore{}
		if err := json.Unmarshal(scoreJSON, score); err != nil {
			return nil, fmt.Errorf("unmarshaling quality score: %w", err)
		}
	}

	res := pipeline.NewPhaseResult(id, sessionID, phaseNumber)
	res.Status = pipeline.PhaseResultStatus(status)
	res.Output = output
	res.QualityScore = score
	res.ProcessingDurationMillis = durationMillis
	res.RetryCount = retryCount
	res.ErrorMessage = errorMessage
	res.StartedAt = startedAt
	res.CompletedAt = completedAt
	res.AIAssisted = aiAssisted
	return res, nil
}
