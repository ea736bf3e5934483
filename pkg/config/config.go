// Package config loads and validates storyforge's YAML configuration: queue
// and worker tuning, retention policy, model provider registry, generation
// defaults, and the HTTP/cache layers, following the teacher's layered
// load → merge → default → validate pipeline.
package config

// Config is the umbrella object returned by Initialize and threaded through
// cmd/storyforge/main.go to construct every other package.
type Config struct {
	configDir string

	Defaults              *Defaults
	Queue                 *QueueConfig
	Retention             *RetentionConfig
	Server                *ServerConfig
	Cache                 *CacheConfig
	ModelProviderRegistry *ModelProviderRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ConfigStats summarizes loaded configuration for startup logging.
type ConfigStats struct {
	ModelProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		ModelProviders: len(c.ModelProviderRegistry.GetAll()),
	}
}

// GetModelProvider retrieves a model provider configuration by name.
func (c *Config) GetModelProvider(name string) (*ModelProviderConfig, error) {
	return c.ModelProviderRegistry.Get(name)
}
