package config

import "fmt"

// Validator validates a loaded Config comprehensively with clear,
// component-scoped error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, failing fast at the first
// error encountered, queue before retention before model providers before
// server/cache — matching load-order dependency.
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateModelProviders(); err != nil {
		return fmt.Errorf("model provider validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateCache(); err != nil {
		return fmt.Errorf("cache validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", q.MaxConcurrentSessions)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter < 0 || q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be in [0, poll_interval), got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", q.SessionTimeout)
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", q.GracefulShutdownTimeout)
	}
	if q.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive, got %v", q.OrphanDetectionInterval)
	}
	if q.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive, got %v", q.OrphanThreshold)
	}
	if q.HeartbeatInterval <= 0 || q.HeartbeatInterval >= q.OrphanThreshold {
		return fmt.Errorf("heartbeat_interval must be positive and less than orphan_threshold, got heartbeat=%v threshold=%v", q.HeartbeatInterval, q.OrphanThreshold)
	}
	if q.MaxParallelImageGenerations < 1 {
		return fmt.Errorf("max_parallel_image_generations must be at least 1, got %d", q.MaxParallelImageGenerations)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.SessionRetentionDays < 1 {
		return fmt.Errorf("session_retention_days must be at least 1, got %d", r.SessionRetentionDays)
	}
	if r.EventTTL <= 0 {
		return fmt.Errorf("event_ttl must be positive, got %v", r.EventTTL)
	}
	if r.PreviewVersionRetentionCount < 1 {
		return fmt.Errorf("preview_version_retention_count must be at least 1, got %d", r.PreviewVersionRetentionCount)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateModelProviders() error {
	for name, p := range v.cfg.ModelProviderRegistry.GetAll() {
		if !p.Type.IsValid() {
			return NewValidationError("model_provider", name, "type", fmt.Errorf("invalid provider type: %s", p.Type))
		}
		if p.Type == ModelProviderHTTP {
			if p.BaseURLEnv == "" {
				return NewValidationError("model_provider", name, "base_url_env", fmt.Errorf("required for http provider"))
			}
			if p.Model == "" {
				return NewValidationError("model_provider", name, "model", fmt.Errorf("required for http provider"))
			}
		}
		if p.MaxRetries < 0 {
			return NewValidationError("model_provider", name, "max_retries", fmt.Errorf("must be non-negative"))
		}
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return nil
	}
	if d.QualityThreshold < 0 || d.QualityThreshold > 1 {
		return NewValidationError("defaults", "", "quality_threshold", fmt.Errorf("must be in [0, 1], got %v", d.QualityThreshold))
	}
	if d.ModelProvider != "" && !v.cfg.ModelProviderRegistry.Has(d.ModelProvider) {
		return NewValidationError("defaults", "", "model_provider", fmt.Errorf("provider '%s' not found", d.ModelProvider))
	}
	for phase, seconds := range d.PerPhaseTimeoutSeconds {
		if phase < 1 || phase > 7 {
			return NewValidationError("defaults", "", "per_phase_timeout_seconds", fmt.Errorf("phase %d out of range 1..7", phase))
		}
		if seconds <= 0 {
			return NewValidationError("defaults", "", "per_phase_timeout_seconds", fmt.Errorf("phase %d timeout must be positive", phase))
		}
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	switch s.GinMode {
	case "debug", "release", "test", "":
	default:
		return fmt.Errorf("gin_mode must be one of debug|release|test, got %q", s.GinMode)
	}
	return nil
}

func (v *Validator) validateCache() error {
	c := v.cfg.Cache
	if c == nil {
		return fmt.Errorf("cache configuration is nil")
	}
	if c.DefaultTTLSeconds < 1 {
		return fmt.Errorf("default_ttl_seconds must be at least 1, got %d", c.DefaultTTLSeconds)
	}
	if c.CleanupIntervalSeconds < 1 {
		return fmt.Errorf("cleanup_interval_seconds must be at least 1, got %d", c.CleanupIntervalSeconds)
	}
	return nil
}
