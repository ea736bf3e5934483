package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// PgContentRepository is a pgx-backed ContentRepository.
type PgContentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository constructs a PgContentRepository over client's pool.
func NewContentRepository(client *Client) *PgContentRepository {
	return &PgContentRepository{pool: client.pool}
}

// Create inserts a new GeneratedContent row. If a row already exists for the
// same (SessionID, PhaseNumber, ContentType, ContentHash), the existing row
// is returned instead of erroring — dedup is the caller's intent (spec §3).
func (r *PgContentRepository) Create(ctx context.Context, c *pipeline.GeneratedContent) (*pipeline.GeneratedContent, error) {
	dataJSON, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling content data: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO generated_content (id, session_id, phase_number, content_type, content_hash,
			data, status, quality_score, generated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, phase_number, content_type, content_hash) DO UPDATE SET
			session_id = generated_content.session_id
		RETURNING id, session_id, phase_number, content_type, content_hash, data, status,
			quality_score, generated_by, created_at
	`, c.ID, c.SessionID, c.PhaseNumber, string(c.ContentType), c.ContentHash,
		dataJSON, string(c.Status), c.QualityScore, c.GeneratedBy, c.CreatedAt)

	return scanContent(row)
}

func (r *PgContentRepository) Get(ctx context.Context, id string) (*pipeline.GeneratedContent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, phase_number, content_type, content_hash, data, status,
			quality_score, generated_by, created_at
		FROM generated_content WHERE id = $1
	`, id)
	c, err := scanContent(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (r *PgContentRepository) FindByHash(ctx context.Context, sessionID string, phaseNumber int, contentType pipeline.ContentType, contentHash string) (*pipeline.GeneratedContent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, phase_number, content_type, content_hash, data, status,
			quality_score, generated_by, created_at
		FROM generated_content
		WHERE session_id = $1 AND phase_number = $2 AND content_type = $3 AND content_hash = $4
	`, sessionID, phaseNumber, string(contentType), contentHash)
	c, err := scanContent(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (r *PgContentRepository) ListBySession(ctx context.Context, sessionID string) ([]*pipeline.GeneratedContent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, phase_number, content_type, content_hash, data, status,
			quality_score, generated_by, created_at
		FROM generated_content WHERE session_id = $1 ORDER BY phase_number ASC, created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing generated content: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.GeneratedContent
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgContentRepository) UpdateStatus(ctx context.Context, id string, status pipeline.GeneratedContentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE generated_content SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("updating content status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func scanContent(row rowScanner) (*pipeline.GeneratedContent, error) {
	var (
		id, sessionID, contentType, contentHash, status, generatedBy string
		phaseNumber                                                  int
		dataJSON                                                     []byte
		qualityScore                                                 *float64
		createdAt                                                    time.Time
	)
	if err := row.Scan(&id, &sessionID, &phaseNumber, &contentType, &contentHash, &dataJSON,
		&status, &qualityScore, &generatedBy, &createdAt); err != nil {
		return nil, err
	}

	var data any
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			return nil, fmt.Errorf("unmarshaling content data: %w", err)
		}
	}

	return &pipeline.GeneratedContent{
		ID:           id,
		SessionID:    sessionID,
		PhaseNumber:  phaseNumber,
		ContentType:  pipeline.ContentType(contentType),
		ContentHash:  contentHash,
		Data:         data,
		Status:       pipeline.GeneratedContentStatus(status),
		QualityScore: qualityScore,
		GeneratedBy:  generatedBy,
		CreatedAt:    createdAt,
	}, nil
}
