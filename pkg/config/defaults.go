package config

import (
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// Defaults holds the system-wide generation defaults applied to a session
// when the caller's submission omits them.
type Defaults struct {
	PrimaryGenre                string      `yaml:"primary_genre,omitempty"`
	QualityThreshold            float64     `yaml:"quality_threshold,omitempty"`
	EnableHITL                  bool        `yaml:"enable_hitl,omitempty"`
	MaxParallelImageGenerations int         `yaml:"max_parallel_image_generations,omitempty"`
	FallbackEnabled             *bool       `yaml:"fallback_enabled,omitempty"`
	ModelProvider               string      `yaml:"model_provider,omitempty"`
	PerPhaseTimeoutSeconds      map[int]int `yaml:"per_phase_timeout_seconds,omitempty"`
}

// ToGenerationParameters builds a pipeline.GenerationParameters seeded from
// these defaults, falling back to pipeline.DefaultParameters for any field
// left unset.
func (d *Defaults) ToGenerationParameters() pipeline.GenerationParameters {
	params := pipeline.DefaultParameters()
	if d == nil {
		return params
	}
	if d.PrimaryGenre != "" {
		params.PrimaryGenre = d.PrimaryGenre
	}
	if d.QualityThreshold > 0 {
		params.QualityThreshold = d.QualityThreshold
	}
	params.EnableHITL = d.EnableHITL
	if d.MaxParallelImageGenerations > 0 {
		params.MaxParallelImageGenerations = d.MaxParallelImageGenerations
	}
	if d.FallbackEnabled != nil {
		params.FallbackEnabled = *d.FallbackEnabled
	}
	for phase, seconds := range d.PerPhaseTimeoutSeconds {
		if seconds > 0 {
			params.PerPhaseTimeouts[phase] = time.Duration(seconds) * time.Second
		}
	}
	return params
}
