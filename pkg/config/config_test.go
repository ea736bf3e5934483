package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigConvenienceMethods(t *testing.T) {
	providers := map[string]*ModelProviderConfig{
		"test-provider": {Type: ModelProviderStub, Model: "test-model"},
	}

	cfg := &Config{
		configDir:             "/test/config",
		ModelProviderRegistry: NewModelProviderRegistry(providers),
	}

	t.Run("ConfigDir", func(t *testing.T) {
		assert.Equal(t, "/test/config", cfg.ConfigDir())
	})

	t.Run("GetModelProvider success", func(t *testing.T) {
		p, err := cfg.GetModelProvider("test-provider")
		require.NoError(t, err)
		assert.Equal(t, "test-model", p.Model)
	})

	t.Run("GetModelProvider not found", func(t *testing.T) {
		_, err := cfg.GetModelProvider("nonexistent")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrModelProviderNotFound)
	})

	t.Run("Stats", func(t *testing.T) {
		assert.Equal(t, 1, cfg.Stats().ModelProviders)
	})
}

func TestDefaultsToGenerationParameters(t *testing.T) {
	t.Run("nil defaults fall back entirely", func(t *testing.T) {
		var d *Defaults
		params := d.ToGenerationParameters()
		assert.Equal(t, "general", params.PrimaryGenre)
	})

	t.Run("partial override", func(t *testing.T) {
		d := &Defaults{PrimaryGenre: "noir", QualityThreshold: 0.8}
		params := d.ToGenerationParameters()
		assert.Equal(t, "noir", params.PrimaryGenre)
		assert.Equal(t, 0.8, params.QualityThreshold)
		assert.Equal(t, 4, params.MaxParallelImageGenerations) // unset, keeps default
	})

	t.Run("per-phase timeout override", func(t *testing.T) {
		d := &Defaults{PerPhaseTimeoutSeconds: map[int]int{5: 40}}
		params := d.ToGenerationParameters()
		assert.Equal(t, 40.0, params.TimeoutFor(5).Seconds())
	})
}
