package pipeline

import "time"

// ModelConfig is the per-phase model invocation configuration.
type ModelConfig struct {
	ModelID     string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// GenerationParameters is the immutable value object configuring one
// pipeline run. Construct with NewGenerationParameters (or DefaultParameters)
// rather than a bare struct literal so per-phase maps are always populated.
type GenerationParameters struct {
	PrimaryGenre                string
	QualityThreshold            float64
	EnableHITL                  bool
	MaxParallelImageGenerations int
	PerPhaseTimeouts            map[int]time.Duration
	PhaseModelConfig            map[int]ModelConfig
	FallbackEnabled             bool
}

// DefaultPerPhaseTimeouts returns the default timeout table from spec §5:
// P1=12s, P2=18s, P3=15s, P4=20s, P5=25s, P6=4s, P7=3s.
func DefaultPerPhaseTimeouts() map[int]time.Duration {
	return map[int]time.Duration{
		1: 12 * time.Second,
		2: 18 * time.Second,
		3: 15 * time.Second,
		4: 20 * time.Second,
		5: 25 * time.Second,
		6: 4 * time.Second,
		7: 3 * time.Second,
	}
}

// DefaultParameters returns sane defaults for a single-shot submission,
// suitable as a starting point for API callers that only override a few
// fields.
func DefaultParameters() GenerationParameters {
	modelCfg := make(map[int]ModelConfig, 7)
	for phase := 1; phase <= 7; phase++ {
		modelCfg[phase] = ModelConfig{
			ModelID:     "default",
			Temperature: 0.7,
			TopP:        0.9,
			TopK:        40,
			MaxTokens:   2048,
		}
	}
	return GenerationParameters{
		PrimaryGenre:                "general",
		QualityThreshold:            0.6,
		EnableHITL:                  false,
		MaxParallelImageGenerations: 4,
		PerPhaseTimeouts:            DefaultPerPhaseTimeouts(),
		PhaseModelConfig:            modelCfg,
		FallbackEnabled:             true,
	}
}

// TimeoutFor returns the configured timeout for phase, falling back to the
// default table when the caller supplied a sparse map.
func (p GenerationParameters) TimeoutFor(phase int) time.Duration {
	if d, ok := p.PerPhaseTimeouts[phase]; ok && d > 0 {
		return d
	}
	return DefaultPerPhaseTimeouts()[phase]
}

// ModelConfigFor returns the configured model config for phase, falling back
// to a neutral default when unset.
func (p GenerationParameters) ModelConfigFor(phase int) ModelConfig {
	if cfg, ok := p.PhaseModelConfig[phase]; ok {
		return cfg
	}
	return ModelConfig{ModelID: "default", Temperature: 0.7, TopP: 0.9, TopK: 40, MaxTokens: 2048}
}
