package agent

import (
	"strings"
)

// Phase1Agent extracts a structured story analysis from the caller's raw
// input text: genre, themes, a scene list, story-structure beats, and
// visual suggestions.
type Phase1Agent struct{}

// NewPhase1Agent constructs a Phase1Agent.
func NewPhase1Agent() *Phase1Agent { return &Phase1Agent{} }

// Phase returns 1.
func (a *Phase1Agent) Phase() int { return 1 }

// ValidateInputs requires only a non-empty inputText (spec §4.2 dependency
// matrix: phase 1 requires inputText only).
func (a *Phase1Agent) ValidateInputs(input ExecutionInput) error {
	if strings.TrimSpace(input.InputText) == "" {
		return fieldErr(1, "inputText", "input text must not be empty")
	}
	return nil
}

func (a *Phase1Agent) BuildPrompt(input ExecutionInput) string {
	var b strings.Builder
	b.WriteString("You are a story analyst. Given the following premise, extract genre, ")
	b.WriteString("themes, world setting, character sketches, a scene list (3-12 entries, ")
	b.WriteString("each with emotionalIntensity 1-10 and importance high/medium/low), ")
	b.WriteString("story structure beats, and visual suggestions. Respond with a single ")
	b.WriteString("```json fenced object with keys genre, themes, worldSetting, characters, ")
	b.WriteString("scenes, storyStructureBeats, visualSuggestions, metrics.\n\nPremise:\n")
	b.WriteString(input.InputText)
	return b.String()
}

func (a *Phase1Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	_, hasGenre := getString(structured, "genre")
	scenes, hasScenes := getSlice(structured, "scenes")
	return hasGenre && hasScenes && len(scenes) > 0
}

func (a *Phase1Agent) Fallback(input ExecutionInput) map[string]any {
	genre := input.Params.PrimaryGenre
	if genre == "" {
		genre = "general"
	}
	return map[string]any{
		"genre":        genre,
		"themes":       []any{"courage", "transformation"},
		"worldSetting": "An unspecified setting inferred from the premise.",
		"characters": []any{
			map[string]any{"name": "Protagonist", "role": "protagonist", "prominence": 0.9},
		},
		"scenes": []any{
			fallbackScene("scene-1", "Opening", 5, "high"),
			fallbackScene("scene-2", "Rising action", 6, "medium"),
			fallbackScene("scene-3", "Resolution", 7, "high"),
		},
		"storyStructureBeats": []any{"setup", "confrontation", "resolution"},
		"visualSuggestions":   []any{"establishing wide shot", "close-up on protagonist"},
		"metrics": map[string]any{
			"relevance": 0.5, "genreFit": 0.5, "coherence": 0.5, "creativity": 0.4,
		},
	}
}

func fallbackScene(id, description string, intensity int, importance string) map[string]any {
	return map[string]any{
		"id":                 id,
		"description":        description,
		"emotionalIntensity": intensity,
		"importance":         importance,
	}
}

func (a *Phase1Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	if _, ok := structured["themes"]; !ok {
		structured["themes"] = []any{}
	}
	if _, ok := structured["worldSetting"]; !ok {
		structured["worldSetting"] = ""
	}
	if _, ok := structured["characters"]; !ok {
		structured["characters"] = []any{}
	}
	if _, ok := structured["storyStructureBeats"]; !ok {
		structured["storyStructureBeats"] = []any{}
	}
	if _, ok := structured["visualSuggestions"]; !ok {
		structured["visualSuggestions"] = []any{}
	}
	if _, ok := structured["metrics"]; !ok {
		structured["metrics"] = map[string]any{}
	}
	return structured
}

func (a *Phase1Agent) ValidateOutput(structured map[string]any) error {
	if err := requireStringField(1, structured, "genre"); err != nil {
		return err
	}
	scenes, ok := getSlice(structured, "scenes")
	if !ok || len(scenes) < 3 || len(scenes) > 12 {
		return fieldErr(1, "scenes", "expected 3..12 entries")
	}
	for _, raw := range scenes {
		scene, ok := raw.(map[string]any)
		if !ok {
			return fieldErr(1, "scenes[]", "expected object")
		}
		intensity, ok := asFloat(scene["emotionalIntensity"])
		if !ok || intensity < 1 || intensity > 10 {
			return fieldErr(1, "scenes[].emotionalIntensity", "expected 1..10")
		}
		importance, _ := getString(scene, "importance")
		if importance != "high" && importance != "medium" && importance != "low" {
			return fieldErr(1, "scenes[].importance", "expected high|medium|low")
		}
	}
	return nil
}

func (a *Phase1Agent) GeneratePreview(structured map[string]any) map[string]any {
	genre, _ := getString(structured, "genre")
	scenes, _ := getSlice(structured, "scenes")
	return map[string]any{
		"genre":      genre,
		"sceneCount": len(scenes),
	}
}
