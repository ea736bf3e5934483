package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageTaskKey_Deterministic(t *testing.T) {
	style := map[string]any{"palette": "noir", "lineweight": 2}
	k1 := ImageTaskKey("a hero", "blurry", style)
	k2 := ImageTaskKey("a hero", "blurry", style)
	assert.Equal(t, k1, k2)
}

func TestImageTaskKey_StyleKeyOrderDoesNotMatter(t *testing.T) {
	k1 := ImageTaskKey("a hero", "blurry", map[string]any{"a": 1, "b": 2})
	k2 := ImageTaskKey("a hero", "blurry", map[string]any{"b": 2, "a": 1})
	assert.Equal(t, k1, k2)
}

func TestImageTaskKey_DifferentPromptsDiffer(t *testing.T) {
	k1 := ImageTaskKey("a hero", "blurry", nil)
	k2 := ImageTaskKey("a villain", "blurry", nil)
	assert.NotEqual(t, k1, k2)
}

func TestImageTaskKey_DifferentStyleDiffers(t *testing.T) {
	k1 := ImageTaskKey("a hero", "blurry", map[string]any{"palette": "noir"})
	k2 := ImageTaskKey("a hero", "blurry", map[string]any{"palette": "pastel"})
	assert.NotEqual(t, k1, k2)
}
