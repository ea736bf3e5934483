package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

func TestPhase1Agent_ValidateInputs_RejectsEmptyText(t *testing.T) {
	a := NewPhase1Agent()
	err := a.ValidateInputs(ExecutionInput{InputText: "   "})
	assert.Error(t, err)
}

func TestPhase1Agent_PostCheck(t *testing.T) {
	a := NewPhase1Agent()
	assert.False(t, a.PostCheck(nil))
	assert.False(t, a.PostCheck(map[string]any{"genre": "fantasy"}))
	assert.False(t, a.PostCheck(map[string]any{"scenes": []any{}}))
	assert.True(t, a.PostCheck(map[string]any{"genre": "fantasy", "scenes": []any{map[string]any{}}}))
}

func TestPhase1Agent_Fallback_ProducesValidatableOutput(t *testing.T) {
	a := NewPhase1Agent()
	input := ExecutionInput{InputText: "a hero begins a journey", Params: pipeline.DefaultParameters()}
	structured := a.CompleteWithDefaults(a.Fallback(input))
	assert.NoError(t, a.ValidateOutput(structured))
}

func TestPhase1Agent_Fallback_UsesPrimaryGenreWhenSet(t *testing.T) {
	a := NewPhase1Agent()
	params := pipeline.DefaultParameters()
	params.PrimaryGenre = "noir"
	out := a.Fallback(ExecutionInput{InputText: "x", Params: params})
	assert.Equal(t, "noir", out["genre"])
}

func TestPhase1Agent_ValidateOutput_RejectsTooFewScenes(t *testing.T) {
	a := NewPhase1Agent()
	structured := map[string]any{
		"genre":  "fantasy",
		"scenes": []any{fallbackScene("s1", "a", 5, "high")},
	}
	assert.Error(t, a.ValidateOutput(structured))
}

func TestPhase1Agent_ValidateOutput_RejectsBadImportance(t *testing.T) {
	a := NewPhase1Agent()
	structured := map[string]any{
		"genre": "fantasy",
		"scenes": []any{
			fallbackScene("s1", "a", 5, "extreme"),
			fallbackScene("s2", "b", 5, "high"),
			fallbackScene("s3", "c", 5, "high"),
		},
	}
	assert.Error(t, a.ValidateOutput(structured))
}

func TestPhase1Agent_ValidateOutput_RejectsOutOfRangeIntensity(t *testing.T) {
	a := NewPhase1Agent()
	structured := map[string]any{
		"genre": "fantasy",
		"scenes": []any{
			fallbackScene("s1", "a", 11, "high"),
			fallbackScene("s2", "b", 5, "high"),
			fallbackScene("s3", "c", 5, "high"),
		},
	}
	assert.Error(t, a.ValidateOutput(structured))
}

func TestPhase1Agent_GeneratePreview(t *testing.T) {
	a := NewPhase1Agent()
	structured := a.CompleteWithDefaults(a.Fallback(ExecutionInput{Params: pipeline.DefaultParameters()}))
	preview := a.GeneratePreview(structured)
	assert.Equal(t, 3, preview["sceneCount"])
}
