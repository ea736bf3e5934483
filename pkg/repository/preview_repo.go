package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// PgPreviewRepository is a pgx-backed PreviewRepository.
type PgPreviewRepository struct {
	pool *pgxpool.Pool
}

// NewPreviewRepository constructs a PgPreviewRepository over client's pool.
func NewPreviewRepository(client *Client) *PgPreviewRepository {
	return &PgPreviewRepository{pool: client.pool}
}

// Create inserts a new PreviewVersion row. Version is assigned by the caller
// (the orchestrator tracks the monotonic counter per phase), so the unique
// constraint on (session_id, phase_number, version) catches any drift.
func (r *PgPreviewRepository) Create(ctx context.Context, p *pipeline.PreviewVersion) error {
	summaryJSON, err := json.Marshal(p.Summary)
	if err != nil {
		return fmt.Errorf("marshaling preview summary: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO preview_versions (id, session_id, phase_number, version, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.SessionID, p.PhaseNumber, p.Version, summaryJSON, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting preview version: %w", err)
	}
	return nil
}

func (r *PgPreviewRepository) LatestForPhase(ctx context.Context, sessionID string, phaseNumber int) (*pipeline.PreviewVersion, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, phase_number, version, summary, created_at
		FROM preview_versions
		WHERE session_id = $1 AND phase_number = $2
		ORDER BY version DESC LIMIT 1
	`, sessionID, phaseNumber)
	p, err := scanPreview(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

func (r *PgPreviewRepository) ListBySession(ctx context.Context, sessionID string) ([]*pipeline.PreviewVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, phase_number, version, summary, created_at
		FROM preview_versions WHERE session_id = $1 ORDER BY phase_number ASC, version ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing preview versions: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.PreviewVersion
	for rows.Next() {
		p, err := scanPreview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PruneOldVersions deletes all but the keep most recent versions per
// (session_id, phase_number), using a window function to rank versions
// newest-first and deleting anything ranked beyond keep.
func (r *PgPreviewRepository) PruneOldVersions(ctx context.Context, keep int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM preview_versions
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY session_id, phase_number ORDER BY version DESC
				) AS rnk
				FROM preview_versions
			) ranked
			WHERE ranked.rnk > $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning old preview versions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanPreview(row rowScanner) (*pipeline.PreviewVersion, error) {
	var (
		id, sessionID string
		phaseNumber   int
		version       int
		summaryJSON   []byte
		createdAt     time.Time
	)
	if err := row.Scan(&id, &sessionID, &phaseNumber, &version, &summaryJSON, &createdAt); err != nil {
		return nil, err
	}
	var summary map[string]any
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, fmt.Errorf("unmarshaling preview summary: %w", err)
		}
	}
	return &pipeline.PreviewVersion{
		ID:          id,
		SessionID:   sessionID,
		PhaseNumber: phaseNumber,
		Version:     version,
		Summary:     summary,
		CreatedAt:   createdAt,
	}, nil
}
