package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/repository/memory"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxConcurrentSessions:   5,
		PollInterval:            10 * time.Millisecond,
		PollIntervalJitter:      5 * time.Millisecond,
		SessionTimeout:          time.Minute,
		GracefulShutdownTimeout: time.Second,
		HeartbeatInterval:       20 * time.Millisecond,
		OrphanDetectionInterval: 20 * time.Millisecond,
		OrphanThreshold:         50 * time.Millisecond,
	}
}

// fakeDriver records invocations and completes a session with a caller
// supplied terminal behavior, standing in for orchestrator.Driver.
type fakeDriver struct {
	mu   sync.Mutex
	runs []string

	sessions interface {
		Update(ctx context.Context, s *pipeline.Session) error
	}
}

func (f *fakeDriver) Run(ctx context.Context, session *pipeline.Session) error {
	f.mu.Lock()
	f.runs = append(f.runs, session.ID)
	f.mu.Unlock()

	session.Start()
	session.Complete()
	return f.sessions.Update(ctx, session)
}

func (f *fakeDriver) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newParams() pipeline.GenerationParameters {
	return pipeline.DefaultParameters()
}

func TestPoolClaimsAndDrivesQueuedSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := memory.NewSessionRepository()
	session := pipeline.NewSession("sess-1", "user-1", "Title", "input", newParams())
	require.NoError(t, sessions.Create(ctx, session))

	driver := &fakeDriver{sessions: sessions}
	cfg := testQueueConfig()
	cfg.WorkerCount = 1
	pool := NewPool("pod-1", sessions, cfg, driver)
	pool.Start(ctx)
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		return driver.runCount() == 1
	}, time.Second, 5*time.Millisecond)

	got, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, got.Status)
}

func TestPoolHealthReflectsQueueDepth(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionRepository()
	for i := 0; i < 3; i++ {
		s := pipeline.NewSession("q-"+string(rune('a'+i)), "user-1", "Title", "input", newParams())
		require.NoError(t, sessions.Create(ctx, s))
	}

	cfg := testQueueConfig()
	pool := NewPool("pod-1", sessions, cfg, &fakeDriver{sessions: sessions})

	health := pool.Health(ctx)
	assert.Equal(t, 3, health.QueueDepth)
	assert.Equal(t, 0, health.ActiveSessions)
	assert.Equal(t, "pod-1", health.PodID)
}

func TestPoolStopIsIdempotentAndGraceful(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := memory.NewSessionRepository()
	cfg := testQueueConfig()
	pool := NewPool("pod-1", sessions, cfg, &fakeDriver{sessions: sessions})
	pool.Start(ctx)

	assert.NotPanics(t, func() {
		pool.Stop()
	})
}

func TestOrphanSweepFailsStaleProcessingSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := memory.NewSessionRepository()
	session := pipeline.NewSession("orphan-1", "user-1", "Title", "input", newParams())
	session.Start()
	require.NoError(t, sessions.Create(ctx, session))
	// No heartbeat recorded: ListOrphaned treats a processing session with
	// no heartbeat entry as immediately stale (memory.SessionRepository
	// semantics), so the sweep should recover it on its first tick.

	cfg := testQueueConfig()
	cfg.WorkerCount = 0
	pool := NewPool("pod-1", sessions, cfg, &fakeDriver{sessions: sessions})
	pool.Start(ctx)
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		got, err := sessions.Get(ctx, "orphan-1")
		return err == nil && got.Status == pipeline.StatusFailed
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerPollIntervalWithinJitterBounds(t *testing.T) {
	cfg := testQueueConfig()
	w := newWorker("w-1", "pod-1", memory.NewSessionRepository(), cfg, nil, make(chan struct{}))

	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, cfg.PollInterval-cfg.PollIntervalJitter)
		assert.LessOrEqual(t, d, cfg.PollInterval+cfg.PollIntervalJitter)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollIntervalJitter = 0
	w := newWorker("w-1", "pod-1", memory.NewSessionRepository(), cfg, nil, make(chan struct{}))

	for i := 0; i < 10; i++ {
		assert.Equal(t, cfg.PollInterval, w.pollInterval())
	}
}

func TestWorkerHealthTracksCurrentSession(t *testing.T) {
	cfg := testQueueConfig()
	w := newWorker("w-1", "pod-1", memory.NewSessionRepository(), cfg, nil, make(chan struct{}))

	h := w.health()
	assert.Equal(t, WorkerStatusIdle, WorkerStatus(h.Status))

	w.setStatus(WorkerStatusWorking, "sess-9")
	h = w.health()
	assert.Equal(t, WorkerStatusWorking, WorkerStatus(h.Status))
	assert.Equal(t, "sess-9", h.CurrentSessionID)
}
