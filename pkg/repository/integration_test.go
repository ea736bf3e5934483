//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/repository"
)

// newTestClient starts a disposable PostgreSQL container, applies the
// embedded migrations against it, and returns a repository.Client wrapping
// the pool. Mirrors the teacher's database/client_test.go container setup,
// swapping Ent auto-migration for golang-migrate since storyforge owns its
// schema as plain SQL rather than generated Ent migrations.
func newTestClient(t *testing.T) *repository.Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storyforge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := repository.NewClient(ctx, repository.DefaultConfig(connStr))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestPgSessionRepository_CreateGetUpdate(t *testing.T) {
	client := newTestClient(t)
	repo := repository.NewSessionRepository(client)
	ctx := context.Background()

	s := pipeline.NewSession(uuid.NewString(), "user-1", "A Knight's Tale", "A brave knight rescues a dragon", pipeline.DefaultParameters())
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, pipeline.StatusQueued, got.Status)
	assert.Equal(t, s.Params.PrimaryGenre, got.Params.PrimaryGenre)

	got.Start()
	got.Title = "A Knight's Tale, Revised"
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessing, reloaded.Status)
	assert.Equal(t, "A Knight's Tale, Revised", reloaded.Title)
}

func TestPgSessionRepository_Get_NotFound(t *testing.T) {
	client := newTestClient(t)
	repo := repository.NewSessionRepository(client)

	_, err := repo.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestPgSessionRepository_ClaimNextQueued(t *testing.T) {
	client := newTestClient(t)
	repo := repository.NewSessionRepository(client)
	ctx := context.Background()

	s1 := pipeline.NewSession(uuid.NewString(), "user-1", "First", "first input", pipeline.DefaultParameters())
	require.NoError(t, repo.Create(ctx, s1))
	time.Sleep(10 * time.Millisecond)
	s2 := pipeline.NewSession(uuid.NewString(), "user-1", "Second", "second input", pipeline.DefaultParameters())
	require.NoError(t, repo.Create(ctx, s2))

	claimed, err := repo.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, claimed.ID, "oldest queued session claimed first")
	assert.Equal(t, pipeline.StatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.CurrentPhase)

	_, err = repo.Get(ctx, s2.ID)
	require.NoError(t, err)

	remaining, err := repo.ListByStatus(ctx, pipeline.StatusQueued, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, s2.ID, remaining[0].ID)
}

func TestPgSessionRepository_ListOrphanedAndDeleteTerminalBefore(t *testing.T) {
	client := newTestClient(t)
	repo := repository.NewSessionRepository(client)
	ctx := context.Background()

	s := pipeline.NewSession(uuid.NewString(), "user-1", "Stuck", "input", pipeline.DefaultParameters())
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)

	orphaned, err := repo.ListOrphaned(ctx, time.Now().Add(time.Minute).Unix())
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, s.ID, orphaned[0].ID)

	done, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	done.Status = pipeline.StatusCompleted
	now := time.Now().UTC()
	done.CompletedAt = &now
	done.UpdatedAt = now.Add(-48 * time.Hour)
	require.NoError(t, repo.Update(ctx, done))

	deleted, err := repo.DeleteTerminalBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestPgPhaseResultRepository_UpsertEnforcesOnePerPhase(t *testing.T) {
	client := newTestClient(t)
	sessions := repository.NewSessionRepository(client)
	phases := repository.NewPhaseResultRepository(client)
	ctx := context.Background()

	s := pipeline.NewSession(uuid.NewString(), "user-1", "Title", "input", pipeline.DefaultParameters())
	require.NoError(t, sessions.Create(ctx, s))

	pr := pipeline.NewPhaseResult(uuid.NewString(), s.ID, 1)
	pr.Begin()
	require.NoError(t, phases.Upsert(ctx, pr))

	score := pipeline.NewQualityScore(map[string]pipeline.MetricScore{
		"relevance": {Score: 0.9, Weight: 1.0},
	})
	pr.Succeed(pipeline.PhaseOutput{"genre": "fantasy"}, &score, 1200, true)
	require.NoError(t, phases.Upsert(ctx, pr))

	got, err := phases.Get(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, pipeline.PhaseResultCompleted, got.Status)
	assert.Equal(t, "fantasy", got.Output["genre"])
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.9, got.QualityScore.Overall, 1e-9)

	list, err := phases.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "upsert on (session, phase) replaces rather than duplicates")
}

func TestPgContentRepository_DedupesByHash(t *testing.T) {
	client := newTestClient(t)
	sessions := repository.NewSessionRepository(client)
	content := repository.NewContentRepository(client)
	ctx := context.Background()

	s := pipeline.NewSession(uuid.NewString(), "user-1", "Title", "input", pipeline.DefaultParameters())
	require.NoError(t, sessions.Create(ctx, s))

	first := &pipeline.GeneratedContent{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		PhaseNumber: 5,
		ContentType: pipeline.ContentTypeImage,
		ContentHash: "deadbeef",
		Data:        map[string]any{"url": "https://example.test/a.png"},
		Status:      pipeline.ContentStatusGenerated,
		GeneratedBy: "model-x",
		CreatedAt:   time.Now().UTC(),
	}
	created, err := content.Create(ctx, first)
	require.NoError(t, err)

	duplicate := &pipeline.GeneratedContent{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		PhaseNumber: 5,
		ContentType: pipeline.ContentTypeImage,
		ContentHash: "deadbeef",
		Data:        map[string]any{"url": "https://example.test/b.png"},
		Status:      pipeline.ContentStatusGenerated,
		GeneratedBy: "model-x",
		CreatedAt:   time.Now().UTC(),
	}
	resolved, err := content.Create(ctx, duplicate)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID, "duplicate content hash resolves to the existing row")

	all, err := content.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPgPreviewRepository_PruneOldVersions(t *testing.T) {
	client := newTestClient(t)
	sessions := repository.NewSessionRepository(client)
	previews := repository.NewPreviewRepository(client)
	ctx := context.Background()

	s := pipeline.NewSession(uuid.NewString(), "user-1", "Title", "input", pipeline.DefaultParameters())
	require.NoError(t, sessions.Create(ctx, s))

	for v := 1; v <= 5; v++ {
		require.NoError(t, previews.Create(ctx, &pipeline.PreviewVersion{
			ID:          uuid.NewString(),
			SessionID:   s.ID,
			PhaseNumber: 4,
			Version:     v,
			Summary:     map[string]any{"pageCount": v},
			CreatedAt:   time.Now().UTC(),
		}))
	}

	pruned, err := previews.PruneOldVersions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	remaining, err := previews.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, 4, remaining[0].Version)
	assert.Equal(t, 5, remaining[1].Version)

	latest, err := previews.LatestForPhase(ctx, s.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Version)
}
