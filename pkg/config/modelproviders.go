package config

import (
	"fmt"
	"sync"
	"time"
)

// ModelProviderType distinguishes how the Model Gateway talks to a backend.
type ModelProviderType string

const (
	// ModelProviderHTTP is a generic OpenAI-compatible HTTP/JSON backend.
	ModelProviderHTTP ModelProviderType = "http"
	// ModelProviderStub is the deterministic in-process backend used in
	// tests and as the last-resort fallback path.
	ModelProviderStub ModelProviderType = "stub"
)

// IsValid reports whether t is a recognized provider type.
func (t ModelProviderType) IsValid() bool {
	switch t {
	case ModelProviderHTTP, ModelProviderStub:
		return true
	default:
		return false
	}
}

// ModelProviderConfig configures one backend the Model Gateway can dispatch
// generation requests to, analogous to the teacher's LLMProviderConfig.
type ModelProviderConfig struct {
	Type           ModelProviderType `yaml:"type"`
	BaseURLEnv     string            `yaml:"base_url_env,omitempty"`
	APIKeyEnv      string            `yaml:"api_key_env,omitempty"`
	Model          string            `yaml:"model"`
	RequestTimeout time.Duration     `yaml:"request_timeout,omitempty"`
	MaxRetries     int               `yaml:"max_retries,omitempty"`
}

// ModelProviderRegistry is a read-only, concurrency-safe lookup of model
// providers built once at startup.
type ModelProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*ModelProviderConfig
}

// NewModelProviderRegistry builds a registry from a resolved provider map.
func NewModelProviderRegistry(providers map[string]*ModelProviderConfig) *ModelProviderRegistry {
	return &ModelProviderRegistry{providers: providers}
}

// Get returns the named provider or ErrModelProviderNotFound.
func (r *ModelProviderRegistry) Get(name string) (*ModelProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelProviderNotFound, name)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *ModelProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// GetAll returns every registered provider, keyed by name.
func (r *ModelProviderRegistry) GetAll() map[string]*ModelProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ModelProviderConfig, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}

// builtinModelProviders returns the provider every deployment gets without
// any YAML at all: a deterministic stub usable in tests and as a last-resort
// fallback target.
func builtinModelProviders() map[string]ModelProviderConfig {
	return map[string]ModelProviderConfig{
		"stub": {
			Type:           ModelProviderStub,
			Model:          "stub-deterministic",
			RequestTimeout: 1 * time.Second,
			MaxRetries:     0,
		},
	}
}

// mergeModelProviders merges built-in and user-defined providers; user
// entries override built-ins with the same name.
func mergeModelProviders(builtin, user map[string]ModelProviderConfig) map[string]*ModelProviderConfig {
	result := make(map[string]*ModelProviderConfig, len(builtin)+len(user))
	for name, p := range builtin {
		providerCopy := p
		result[name] = &providerCopy
	}
	for name, p := range user {
		providerCopy := p
		result[name] = &providerCopy
	}
	return result
}
