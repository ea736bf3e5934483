package fanout

import (
	"math"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// Report is the full post-aggregation summary of one phase-5 run, folded
// into phase 5's "metrics" map so the quality assessor's imageSuccessRate/
// avgImageQuality/characterConsistency/coherence metrics (spec §4.5) can
// read it back out.
type Report struct {
	Results              []pipeline.ImageGenerationResult
	PerCharacterScore    map[string]float64
	OverallConsistency   float64
	ParallelEfficiency   float64
	CacheHitRate         float64
	ImageSuccessRate     float64
	AverageImageQuality  float64
}

// Aggregate folds a completed engine run into a Report. panelCharacters
// maps each panel id to the character names credited to it, used for the
// per-character consistency score; the phase-5 runner credits every panel
// with all of phase 1's character names. styleConsistency is the
// caller-supplied style score; the phase-5 runner passes 1.0 when phase 2
// supplied a non-empty styleGuide and 0.5 otherwise.
func Aggregate(results []pipeline.ImageGenerationResult, panelCharacters map[string][]string, styleConsistency float64, maxParallel int) Report {
	perCharacter := perCharacterConsistency(results, panelCharacters)
	qualityVariance := varianceOf(successfulQualityScores(results))

	return Report{
		Results:             results,
		PerCharacterScore:   perCharacter,
		OverallConsistency:  overallConsistency(perCharacter, styleConsistency, qualityVariance),
		ParallelEfficiency:  parallelEfficiency(results, maxParallel),
		CacheHitRate:        cacheHitRate(results),
		ImageSuccessRate:    successRate(results),
		AverageImageQuality: averageOf(successfulQualityScores(results)),
	}
}

func perCharacterConsistency(results []pipeline.ImageGenerationResult, panelCharacters map[string][]string) map[string]float64 {
	byCharacter := make(map[string][]float64)
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, name := range panelCharacters[r.PanelID] {
			byCharacter[name] = append(byCharacter[name], r.QualityScore)
		}
	}
	out := make(map[string]float64, len(byCharacter))
	for name, scores := range byCharacter {
		avg := averageOf(scores)
		variance := varianceOf(scores)
		out[name] = avg * (1 - math.Min(0.3, variance))
	}
	return out
}

func overallConsistency(perCharacter map[string]float64, styleConsistency, qualityVariance float64) float64 {
	characterAvg := averageOf(mapValues(perCharacter))
	return 0.4*characterAvg + 0.35*styleConsistency + 0.25*(1-math.Min(1, qualityVariance))
}

func parallelEfficiency(results []pipeline.ImageGenerationResult, maxParallel int) float64 {
	durations := make([]float64, 0, len(results))
	var sum, max float64
	for _, r := range results {
		d := float64(r.GenerationDurationMillis)
		durations = append(durations, d)
		sum += d
		if d > max {
			max = d
		}
	}
	if sum == 0 || len(durations) == 0 {
		return 0
	}
	base := 1 - (max / sum)
	taskCount := len(durations)
	adjustment := 0.5 + 0.5*math.Min(1, float64(maxParallel)/float64(taskCount))
	return base * adjustment
}

func cacheHitRate(results []pipeline.ImageGenerationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	hits := 0
	for _, r := range results {
		if r.CacheHit {
			hits++
		}
	}
	return float64(hits) / float64(len(results))
}

func successRate(results []pipeline.ImageGenerationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}
	return float64(success) / float64(len(results))
}

func successfulQualityScores(results []pipeline.ImageGenerationResult) []float64 {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Success {
			scores = append(scores, r.QualityScore)
		}
	}
	return scores
}

func averageOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func varianceOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := averageOf(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

func mapValues(m map[string]float64) []float64 {
	values := make([]float64, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}
