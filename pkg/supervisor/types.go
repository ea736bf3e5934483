// Package supervisor owns the top-level polling loop that claims queued
// sessions and drives each one through orchestrator.Driver.Run in its own
// goroutine, grounded on the teacher's WorkerPool/Worker split
// (pkg/queue/pool.go, pkg/queue/worker.go): a fixed pool of workers each
// independently polls, claims with SELECT ... FOR UPDATE SKIP LOCKED,
// heartbeats while running, and a separate background task periodically
// marks failed the orphaned sessions no worker is heartbeating anymore.
package supervisor

import (
	"context"
	"errors"
	"time"
)

// ErrNoSessionsAvailable indicates no queued session was available to claim.
var ErrNoSessionsAvailable = errors.New("no sessions available")

// ErrAtCapacity indicates the global concurrent session limit has been reached.
var ErrAtCapacity = errors.New("at capacity")

// WorkerStatus is the current activity of one Worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time health projection for one Worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CurrentSessionID  string    `json:"current_session_id,omitempty"`
	SessionsProcessed int       `json:"sessions_processed"`
	LastActivity      time.Time `json:"last_activity"`
}

// PoolHealth is a point-in-time health projection for the whole Pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveSessions   int            `json:"active_sessions"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
	Err              string         `json:"error,omitempty"`
}

// sleepInterruptible waits for d or until stopCh closes/ctx is cancelled.
func sleepInterruptible(ctx context.Context, stopCh <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stopCh:
	case <-ctx.Done():
	}
}
