package agent

import (
	"strconv"
	"strings"
)

// Phase3Agent builds narrative structure: acts, plot points, conflict
// layers, emotional design, page allocation, and the canonical `scenes`
// list phases 4 and 6 depend on directly.
type Phase3Agent struct{}

// NewPhase3Agent constructs a Phase3Agent.
func NewPhase3Agent() *Phase3Agent { return &Phase3Agent{} }

// Phase returns 3.
func (a *Phase3Agent) Phase() int { return 3 }

// ValidateInputs requires phase 1's genre/themes/worldSetting and phase 2's
// characters (characterArcs).
func (a *Phase3Agent) ValidateInputs(input ExecutionInput) error {
	p1, err := requirePhase(3, 1, input.Previous)
	if err != nil {
		return err
	}
	if err := requireStringField(3, p1, "genre"); err != nil {
		return err
	}
	if err := requireSliceField(3, p1, "themes"); err != nil {
		return err
	}
	if err := requireStringField(3, p1, "worldSetting"); err != nil {
		return err
	}
	p2, err := requirePhase(3, 2, input.Previous)
	if err != nil {
		return err
	}
	arcs, ok := getMapField(p2, "characterArcs")
	if !ok || len(arcs) == 0 {
		return fieldErr(3, "characterArcs", "expected phase 2 to supply at least one character arc")
	}
	return nil
}

func (a *Phase3Agent) BuildPrompt(input ExecutionInput) string {
	var b strings.Builder
	b.WriteString("You are a narrative structure editor. Produce acts, plot points, conflict ")
	b.WriteString("layers, emotional design, page allocation, and a canonical `scenes` list ")
	b.WriteString("(never `scene_breakdown`). Respond with a ```json fenced object with keys ")
	b.WriteString("acts, plotPoints, conflictLayers, emotionalDesign, pageAllocation, scenes, metrics.\n")
	return b.String()
}

func (a *Phase3Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	scenes, ok := getSlice(structured, "scenes")
	return ok && len(scenes) > 0
}

func (a *Phase3Agent) Fallback(input ExecutionInput) map[string]any {
	p1Scenes, _ := getSlice(input.Previous[1], "scenes")
	scenes := make([]any, 0, len(p1Scenes))
	for i, raw := range p1Scenes {
		src, _ := raw.(map[string]any)
		id, _ := getString(src, "id")
		if id == "" {
			id = "scene-fallback"
		}
		scenes = append(scenes, map[string]any{
			"id":    id,
			"act":   actFor(i, len(p1Scenes)),
			"page":  i + 1,
			"beats": []any{"establish", "complicate", "turn"},
		})
	}
	if len(scenes) == 0 {
		scenes = append(scenes, map[string]any{"id": "scene-1", "act": "setup", "page": 1, "beats": []any{"establish"}})
	}
	return map[string]any{
		"acts":        []any{"setup", "confrontation", "resolution"},
		"plotPoints":  []any{"inciting incident", "midpoint reversal", "climax"},
		"conflictLayers": map[string]any{
			"external": "antagonistic force", "internal": "self-doubt",
		},
		"emotionalDesign": map[string]any{"arc": "tension rises then releases"},
		"pageAllocation":  perScenePageAllocation(len(scenes)),
		"scenes":          scenes,
		"metrics": map[string]any{
			"coherence": 0.5, "pageComposition": 0.5, "creativity": 0.4, "technical": 0.5,
		},
	}
}

func actFor(index, total int) string {
	if total == 0 {
		return "setup"
	}
	switch {
	case index < total/3:
		return "setup"
	case index < 2*total/3:
		return "confrontation"
	default:
		return "resolution"
	}
}

func perScenePageAllocation(sceneCount int) map[string]any {
	alloc := make(map[string]any, sceneCount)
	for i := 0; i < sceneCount; i++ {
		alloc[sceneID(i)] = 1
	}
	return alloc
}

func sceneID(i int) string {
	return "scene-" + strconv.Itoa(i+1)
}

func (a *Phase3Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	for _, key := range []string{"acts", "plotPoints"} {
		if _, ok := structured[key]; !ok {
			structured[key] = []any{}
		}
	}
	for _, key := range []string{"conflictLayers", "emotionalDesign", "pageAllocation", "metrics"} {
		if _, ok := structured[key]; !ok {
			structured[key] = map[string]any{}
		}
	}
	return structured
}

func (a *Phase3Agent) ValidateOutput(structured map[string]any) error {
	return requireScenesCanonical(3, structured)
}

func (a *Phase3Agent) GeneratePreview(structured map[string]any) map[string]any {
	scenes, _ := getSlice(structured, "scenes")
	return map[string]any{"sceneCount": len(scenes)}
}
