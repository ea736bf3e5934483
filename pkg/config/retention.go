package config

import "time"

// RetentionConfig controls the cleanup service's data-retention behavior.
type RetentionConfig struct {
	// SessionRetentionDays is how many days to keep completed/failed/
	// cancelled sessions before deleting them (their child rows cascade).
	SessionRetentionDays int `yaml:"session_retention_days"`

	// EventTTL bounds the age of session_events rows; each cleanup pass
	// deletes every event row older than this, whatever its session.
	EventTTL time.Duration `yaml:"event_ttl"`

	// PreviewVersionRetentionCount caps how many PreviewVersion rows are
	// kept per (session, phase); older versions beyond this count are
	// pruned on each cleanup pass.
	PreviewVersionRetentionCount int `yaml:"preview_version_retention_count"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays:         90,
		EventTTL:                     6 * time.Hour,
		PreviewVersionRetentionCount: 5,
		CleanupInterval:              6 * time.Hour,
	}
}
