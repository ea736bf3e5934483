package config

// ServerConfig configures the gin HTTP API surface (§6 of the spec).
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	GinMode        string   `yaml:"gin_mode"` // debug, release, test
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: ":8080",
		GinMode:    "release",
	}
}

// CacheConfig configures the in-process content cache (patrickmn/go-cache)
// used for content-addressed dedup during phase-5 fan-out.
type CacheConfig struct {
	DefaultTTLSeconds      int `yaml:"default_ttl_seconds"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// DefaultCacheConfig returns the built-in cache defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DefaultTTLSeconds:      30 * 60,
		CleanupIntervalSeconds: 5 * 60,
	}
}
