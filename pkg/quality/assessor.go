// Package quality computes the cross-phase QualityScore for a phase's
// structured output, per the weighted-metric tables in spec §4.5. It is a
// pure function package: no I/O, no randomness, no wall-clock dependence
// beyond QualityScore.ComputedAt — grounded on the weighted-aggregation
// shape of the teacher's pkg/agent/controller/scoring.go, adapted from a
// single LLM-extracted score to a fixed per-phase metric/weight table.
package quality

import (
	"math"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// MetricFunc computes one named metric's [0,1] score from a phase's output
// and the map of previously completed phases' outputs. A metric func that
// cannot find the fields it needs (e.g. a prior phase's output is absent)
// returns 0 — its weight is still retained in the denominator per spec §4.5.
type MetricFunc func(output pipeline.PhaseOutput, previous map[int]pipeline.PhaseOutput) float64

type weightedMetric struct {
	name   string
	weight float64
	fn     MetricFunc
}

// phaseTables holds the fixed metric/weight table per phase, per spec §4.5.
// Phases 3 and 6 are not named explicitly in spec §4.5's "examples" list but
// every phase must be scored (spec §8's completed-session invariant), so
// this table supplies a table for every phase 1..7, deriving the unlisted
// ones (3, 6) from the same metric vocabulary the listed phases use.
var phaseTables = map[int][]weightedMetric{
	1: {
		{"relevance", 0.3, metricRelevance},
		{"genreFit", 0.25, metricGenreFit},
		{"coherence", 0.25, metricCoherence},
		{"creativity", 0.2, metricCreativity},
	},
	2: {
		{"characterConsistency", 0.3, metricCharacterConsistency},
		{"visualAppeal", 0.25, metricVisualAppeal},
		{"creativity", 0.2, metricCreativity},
		{"technical", 0.25, metricTechnical},
	},
	3: {
		{"coherence", 0.3, metricCoherence},
		{"pageComposition", 0.3, metricPageComposition},
		{"creativity", 0.2, metricCreativity},
		{"technical", 0.2, metricTechnical},
	},
	4: {
		{"layoutQuality", 0.25, metricLayoutQuality},
		{"compositionQuality", 0.2, metricCompositionQuality},
		{"readingFlow", 0.2, metricReadingFlow},
		{"cameraVariety", 0.15, metricCameraVariety},
		{"visualHierarchy", 0.1, metricVisualHierarchy},
		{"pageComposition", 0.1, metricPageComposition},
	},
	5: {
		{"imageSuccessRate", 0.3, metricImageSuccessRate},
		{"avgImageQuality", 0.3, metricAvgImageQuality},
		{"characterConsistency", 0.2, metricCharacterConsistency},
		{"coherence", 0.2, metricCoherence},
	},
	6: {
		{"coherence", 0.3, metricCoherence},
		{"readability", 0.3, metricReadability},
		{"technical", 0.2, metricTechnical},
		{"creativity", 0.2, metricCreativity},
	},
	7: {
		{"coherence", 0.3, metricCoherence},
		{"technical", 0.25, metricTechnical},
		{"readability", 0.25, metricReadability},
		{"composite", 0.2, metricComposite},
	},
}

// Assess computes the QualityScore for phase's output, given the outputs of
// all prior completed phases. Deterministic: identical inputs always yield
// an identical Overall/Metrics/Grade (only ComputedAt varies).
func Assess(phase int, output pipeline.PhaseOutput, previous map[int]pipeline.PhaseOutput) pipeline.QualityScore {
	table := phaseTables[phase]
	metrics := make(map[string]pipeline.MetricScore, len(table))
	for _, m := range table {
		score := clamp01(m.fn(output, previous))
		metrics[m.name] = pipeline.MetricScore{Score: score, Weight: m.weight}
	}
	return pipeline.NewQualityScore(metrics)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- metric functions ---
//
// Each metric is a small deterministic heuristic over the opaque
// PhaseOutput map; agents populate a "metrics" sub-map with their own
// self-assessed [0,1] scores (spec §4.2's "quality metrics per phase"), and
// each function returns that agent-reported value as is, or 0 when it is
// absent. No independent structural check adjusts the agent's self-score.

func agentMetric(output pipeline.PhaseOutput, key string) (float64, bool) {
	raw, ok := output["metrics"]
	if !ok {
		return 0, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := asFloat(v)
	return f, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func metricRelevance(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "relevance"); ok {
		return v
	}
	return 0
}

func metricGenreFit(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "genreFit"); ok {
		return v
	}
	return 0
}

func metricCoherence(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "coherence"); ok {
		return v
	}
	return 0
}

func metricCreativity(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "creativity"); ok {
		return v
	}
	return 0
}

func metricCharacterConsistency(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "characterConsistency"); ok {
		return v
	}
	return 0
}

func metricVisualAppeal(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "visualAppeal"); ok {
		return v
	}
	return 0
}

func metricTechnical(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "technical"); ok {
		return v
	}
	return 0
}

func metricPageComposition(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "pageComposition"); ok {
		return v
	}
	return 0
}

func metricLayoutQuality(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "layoutQuality"); ok {
		return v
	}
	return 0
}

func metricCompositionQuality(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "compositionQuality"); ok {
		return v
	}
	return 0
}

func metricReadingFlow(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "readingFlow"); ok {
		return v
	}
	return 0
}

func metricCameraVariety(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "cameraVariety"); ok {
		return v
	}
	return 0
}

func metricVisualHierarchy(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "visualHierarchy"); ok {
		return v
	}
	return 0
}

func metricImageSuccessRate(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "imageSuccessRate"); ok {
		return v
	}
	return 0
}

func metricAvgImageQuality(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "avgImageQuality"); ok {
		return v
	}
	return 0
}

func metricReadability(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "readability"); ok {
		return v
	}
	return 0
}

func metricComposite(output pipeline.PhaseOutput, _ map[int]pipeline.PhaseOutput) float64 {
	if v, ok := agentMetric(output, "composite"); ok {
		return v
	}
	return 0
}
