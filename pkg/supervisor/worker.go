package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/repository"
)

// Worker polls for and drives one session at a time to completion.
type Worker struct {
	id       string
	podID    string
	sessions repository.SessionRepository
	cfg      *config.QueueConfig
	driver   SessionDriver
	stopCh   <-chan struct{}

	mu                sync.RWMutex
	status            WorkerStatus
	currentSessionID  string
	sessionsProcessed int
	lastActivity      time.Time
}

func newWorker(id, podID string, sessions repository.SessionRepository, cfg *config.QueueConfig, driver SessionDriver, stopCh <-chan struct{}) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		sessions:     sessions,
		cfg:          cfg,
		driver:       driver,
		stopCh:       stopCh,
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

func (w *Worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentSessionID:  w.currentSessionID,
		SessionsProcessed: w.sessionsProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoSessionsAvailable) || errors.Is(err, ErrAtCapacity) {
					sleepInterruptible(ctx, w.stopCh, w.pollInterval())
					continue
				}
				log.Error("error processing session", "error", err)
				sleepInterruptible(ctx, w.stopCh, time.Second)
			}
		}
	}
}

// pollAndProcess checks capacity, claims a session, heartbeats it while the
// driver runs, and updates worker health bookkeeping.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := countByStatus(ctx, w.sessions, pipeline.StatusProcessing)
	if err != nil {
		return err
	}
	if active >= w.cfg.MaxConcurrentSessions {
		return ErrAtCapacity
	}

	session, err := w.sessions.ClaimNextQueued(ctx, w.id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return ErrNoSessionsAvailable
		}
		return err
	}

	log := slog.With("session_id", session.ID, "worker_id", w.id)
	log.Info("session claimed")

	w.setStatus(WorkerStatusWorking, session.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	sessionCtx, cancel := context.WithTimeout(ctx, w.cfg.SessionTimeout)
	defer cancel()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(sessionCtx)
	go w.runHeartbeat(heartbeatCtx, session.ID)

	runErr := w.driver.Run(sessionCtx, session)
	cancelHeartbeat()

	if runErr != nil && !errors.Is(runErr, pipeline.ErrCancelled) {
		log.Error("session run ended with error", "error", runErr)
	}

	w.mu.Lock()
	w.sessionsProcessed++
	w.mu.Unlock()

	log.Info("session processing complete")
	return nil
}

func (w *Worker) runHeartbeat(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sessions.Heartbeat(ctx, sessionID); err != nil {
				slog.Warn("heartbeat update failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}
