package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQualityScore_WeightedMean(t *testing.T) {
	score := NewQualityScore(map[string]MetricScore{
		"coherence": {Score: 0.8, Weight: 2},
		"relevance": {Score: 0.6, Weight: 1},
	})
	want := (0.8*2 + 0.6*1) / 3
	assert.True(t, math.Abs(score.Overall-want) < 1e-9)
}

func TestNewQualityScore_NoMetrics(t *testing.T) {
	score := NewQualityScore(map[string]MetricScore{})
	assert.Equal(t, 0.0, score.Overall)
	assert.Equal(t, GradeD, score.Grade)
}

func TestNewQualityScore_GradeBoundaries(t *testing.T) {
	cases := []struct {
		overall float64
		want    Grade
	}{
		{0.95, GradeAPlus},
		{0.9, GradeAPlus},
		{0.87, GradeA},
		{0.82, GradeBPlus},
		{0.77, GradeB},
		{0.72, GradeCPlus},
		{0.67, GradeC},
		{0.61, GradeDPlus},
		{0.3, GradeD},
	}
	for _, c := range cases {
		score := NewQualityScore(map[string]MetricScore{"m": {Score: c.overall, Weight: 1}})
		assert.Equal(t, c.want, score.Grade, "overall %.2f", c.overall)
	}
}
