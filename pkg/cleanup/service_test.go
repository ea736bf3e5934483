package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	memoryrepo "github.com/inkwell-ai/storyforge/pkg/repository/memory"
)

type fakeEventPruner struct {
	calls int32
	count int
}

func (f *fakeEventPruner) PruneOlderThan(ctx context.Context, cutoffUnix int64) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.count, nil
}

func testRetentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		SessionRetentionDays:         90,
		EventTTL:                     time.Hour,
		PreviewVersionRetentionCount: 5,
		CleanupInterval:              10 * time.Millisecond,
	}
}

func TestService_RunAll_InvokesAllThreePolicies(t *testing.T) {
	sessions := memoryrepo.NewSessionRepository()
	previews := memoryrepo.NewPreviewRepository()
	pruner := &fakeEventPruner{count: 3}

	oldSession := pipeline.NewSession("old-1", "user-1", "Title", "input", pipeline.DefaultParameters())
	oldSession.Start()
	oldSession.Complete()
	oldSession.UpdatedAt = time.Now().UTC().AddDate(0, 0, -365)
	require.NoError(t, sessions.Create(context.Background(), oldSession))

	svc := NewService(testRetentionConfig(), sessions, previews, pruner)
	svc.runAll(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&pruner.calls))

	_, err := sessions.Get(context.Background(), "old-1")
	assert.ErrorIs(t, err, pipeline.ErrNotFound, "old terminal session should have been deleted")
}

func TestService_RunAll_SkipsEventPruningWhenNilPruner(t *testing.T) {
	sessions := memoryrepo.NewSessionRepository()
	previews := memoryrepo.NewPreviewRepository()

	svc := NewService(testRetentionConfig(), sessions, previews, nil)
	assert.NotPanics(t, func() { svc.runAll(context.Background()) })
}

func TestService_StartStop_Idempotent(t *testing.T) {
	sessions := memoryrepo.NewSessionRepository()
	previews := memoryrepo.NewPreviewRepository()
	pruner := &fakeEventPruner{}

	svc := NewService(testRetentionConfig(), sessions, previews, pruner)
	svc.Start(context.Background())
	svc.Start(context.Background()) // second call is a no-op, not a second goroutine

	time.Sleep(30 * time.Millisecond)
	svc.Stop()
	svc.Stop() // idempotent

	assert.True(t, atomic.LoadInt32(&pruner.calls) >= 1)
}
