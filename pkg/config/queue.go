package config

import "time"

// QueueConfig controls the worker pool that drives sessions through the
// seven-phase pipeline: how many workers poll, how often, and how orphaned
// sessions (a worker died mid-phase) are detected and marked failed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines polling for queued
	// sessions within this process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentSessions caps sessions actively processing across every
	// replica, enforced before each claim by counting the processing
	// sessions the session repository lists.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// PollInterval is the base interval between checks for queued sessions.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval to avoid
	// thundering-herd polling across replicas.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// SessionTimeout bounds how long a single session may run end to end.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active sessions to
	// finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often an in-flight session's claim is
	// refreshed so the orphan sweep doesn't fail it.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often the supervisor scans for
	// orphaned sessions.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a session may go without a heartbeat
	// before it is considered orphaned and marked failed.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// MaxParallelImageGenerations bounds the phase-5 fan-out worker pool
	// size per session.
	MaxParallelImageGenerations int `yaml:"max_parallel_image_generations"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:                 5,
		MaxConcurrentSessions:       10,
		PollInterval:                1 * time.Second,
		PollIntervalJitter:          500 * time.Millisecond,
		SessionTimeout:              10 * time.Minute,
		GracefulShutdownTimeout:     2 * time.Minute,
		HeartbeatInterval:           30 * time.Second,
		OrphanDetectionInterval:     1 * time.Minute,
		OrphanThreshold:             2 * time.Minute,
		MaxParallelImageGenerations: 4,
	}
}
