package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

func TestAssessWeightedMeanMatchesFormula(t *testing.T) {
	output := pipeline.PhaseOutput{
		"metrics": map[string]any{
			"relevance":  0.8,
			"genreFit":   0.6,
			"coherence":  0.9,
			"creativity": 0.5,
		},
	}
	score := Assess(1, output, nil)

	var num, den float64
	for _, m := range score.Metrics {
		num += m.Score * m.Weight
		den += m.Weight
	}
	assert.InDelta(t, num/den, score.Overall, 1e-9)
}

func TestAssessMissingMetricContributesZeroButKeepsWeight(t *testing.T) {
	score := Assess(1, pipeline.PhaseOutput{}, nil)
	var den float64
	for _, m := range score.Metrics {
		den += m.Weight
	}
	assert.InDelta(t, 1.0, den, 1e-9)
	assert.Less(t, score.Overall, 0.6)
}

func TestAssessIsDeterministic(t *testing.T) {
	output := pipeline.PhaseOutput{
		"metrics": map[string]any{"layoutQuality": 0.7, "compositionQuality": 0.8,
			"readingFlow": 0.6, "cameraVariety": 0.9, "visualHierarchy": 0.5, "pageComposition": 0.4},
	}
	a := Assess(4, output, nil)
	b := Assess(4, output, nil)
	assert.Equal(t, a.Overall, b.Overall)
	assert.Equal(t, a.Grade, b.Grade)
}

func TestGradeThresholds(t *testing.T) {
	cases := []struct {
		overall float64
		grade   pipeline.Grade
	}{
		{0.95, pipeline.GradeAPlus},
		{0.86, pipeline.GradeA},
		{0.81, pipeline.GradeBPlus},
		{0.76, pipeline.GradeB},
		{0.71, pipeline.GradeCPlus},
		{0.66, pipeline.GradeC},
		{0.61, pipeline.GradeDPlus},
		{0.3, pipeline.GradeD},
	}
	for _, c := range cases {
		score := pipeline.NewQualityScore(map[string]pipeline.MetricScore{"x": {Score: c.overall, Weight: 1}})
		assert.Equal(t, c.grade, score.Grade, "overall=%v", c.overall)
	}
}
