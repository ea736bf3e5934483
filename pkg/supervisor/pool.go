package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/repository"
)

// SessionDriver drives one session to a terminal status. Satisfied by
// *orchestrator.Driver; defined here so supervisor depends only on the
// method it calls, not on the orchestrator package.
type SessionDriver interface {
	Run(ctx context.Context, session *pipeline.Session) error
}

// Pool manages a fixed set of Workers claiming and driving sessions, plus a
// background orphan sweep, for one process (pod).
type Pool struct {
	podID    string
	sessions repository.SessionRepository
	cfg      *config.QueueConfig
	driver   SessionDriver

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.RWMutex
	started bool

	orphans orphanState
}

// NewPool constructs a Pool. Call Start to begin polling.
func NewPool(podID string, sessions repository.SessionRepository, cfg *config.QueueConfig, driver SessionDriver) *Pool {
	return &Pool{
		podID:    podID,
		sessions: sessions,
		cfg:      cfg,
		driver:   driver,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the configured worker goroutines and the orphan sweep. Safe
// to call only once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	slog.Info("starting session supervisor pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := newWorker(workerID(p.podID, i), p.podID, p.sessions, p.cfg, p.driver, p.stopCh)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()
}

// Stop signals every worker and the orphan sweep to stop, waiting for any
// in-flight session to reach a terminal state or for the graceful shutdown
// timeout, whichever comes first.
func (p *Pool) Stop() {
	slog.Info("stopping session supervisor pool", "pod_id", p.podID)
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("graceful shutdown timeout elapsed with sessions still in flight", "pod_id", p.podID)
	}
}

func workerID(podID string, index int) string {
	return podID + "-worker-" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 4)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Health returns a point-in-time health projection of the pool.
func (p *Pool) Health(ctx context.Context) PoolHealth {
	queueDepth, errQ := countByStatus(ctx, p.sessions, pipeline.StatusQueued)
	activeSessions, errA := countByStatus(ctx, p.sessions, pipeline.StatusProcessing)

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		h := w.health()
		workerStats[i] = h
		if h.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errQ == nil && errA == nil
	isHealthy := len(p.workers) > 0 && activeSessions <= p.cfg.MaxConcurrentSessions && dbHealthy

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastScan
	recovered := p.orphans.recovered
	p.orphans.mu.Unlock()

	var errMsg string
	switch {
	case errQ != nil:
		errMsg = errQ.Error()
	case errA != nil:
		errMsg = errA.Error()
	}

	return PoolHealth{
		IsHealthy:        isHealthy,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveSessions:   activeSessions,
		MaxConcurrent:    p.cfg.MaxConcurrentSessions,
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
		Err:              errMsg,
	}
}

func countByStatus(ctx context.Context, repo repository.SessionRepository, status pipeline.Status) (int, error) {
	sessions, err := repo.ListByStatus(ctx, status, 0)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}
