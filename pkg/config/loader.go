package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// storyforgeYAMLConfig mirrors the on-disk storyforge.yaml structure.
type storyforgeYAMLConfig struct {
	Defaults  *Defaults        `yaml:"defaults"`
	Queue     *QueueConfig     `yaml:"queue"`
	Retention *RetentionConfig `yaml:"retention"`
	Server    *ServerConfig    `yaml:"server"`
	Cache     *CacheConfig     `yaml:"cache"`
}

// modelProvidersYAMLConfig mirrors model-providers.yaml.
type modelProvidersYAMLConfig struct {
	ModelProviders map[string]ModelProviderConfig `yaml:"model_providers"`
}

// Initialize loads, merges, defaults, and validates configuration rooted at
// configDir. This is the sole entry point cmd/storyforge/main.go calls.
//
// Steps:
//  1. Load storyforge.yaml and model-providers.yaml (env-expanded)
//  2. Merge built-in model providers with user-defined ones
//  3. Merge user queue/retention/server/cache config onto built-in defaults
//  4. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.InfoContext(ctx, "configuration initialized", "model_providers", stats.ModelProviders)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	sfCfg, err := loader.loadStoryforgeYAML()
	if err != nil {
		return nil, NewLoadError("storyforge.yaml", err)
	}

	providers, err := loader.loadModelProvidersYAML()
	if err != nil {
		return nil, NewLoadError("model-providers.yaml", err)
	}

	mergedProviders := mergeModelProviders(builtinModelProviders(), providers)
	providerRegistry := NewModelProviderRegistry(mergedProviders)

	queueCfg := DefaultQueueConfig()
	if sfCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, sfCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if sfCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, sfCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	serverCfg := DefaultServerConfig()
	if sfCfg.Server != nil {
		if err := mergo.Merge(serverCfg, sfCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	cacheCfg := DefaultCacheConfig()
	if sfCfg.Cache != nil {
		if err := mergo.Merge(cacheCfg, sfCfg.Cache, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge cache config: %w", err)
		}
	}

	defaults := sfCfg.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}

	return &Config{
		configDir:             configDir,
		Defaults:              defaults,
		Queue:                 queueCfg,
		Retention:             retentionCfg,
		Server:                serverCfg,
		Cache:                 cacheCfg,
		ModelProviderRegistry: providerRegistry,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}
	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// loadStoryforgeYAML loads storyforge.yaml. A missing file is not an error:
// every section falls back to its built-in default.
func (l *configLoader) loadStoryforgeYAML() (*storyforgeYAMLConfig, error) {
	cfg := &storyforgeYAMLConfig{}
	if err := l.loadYAML("storyforge.yaml", cfg); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return &storyforgeYAMLConfig{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// loadModelProvidersYAML loads model-providers.yaml. A missing file is not
// an error: the built-in "stub" provider is always available.
func (l *configLoader) loadModelProvidersYAML() (map[string]ModelProviderConfig, error) {
	cfg := modelProvidersYAMLConfig{ModelProviders: make(map[string]ModelProviderConfig)}
	if err := l.loadYAML("model-providers.yaml", &cfg); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return map[string]ModelProviderConfig{}, nil
		}
		return nil, err
	}
	return cfg.ModelProviders, nil
}
