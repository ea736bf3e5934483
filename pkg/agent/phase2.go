package agent

import "strings"

// Phase2Agent produces character arcs and a visual style guide, keyed by
// the names phase 1 introduced.
type Phase2Agent struct{}

// NewPhase2Agent constructs a Phase2Agent.
func NewPhase2Agent() *Phase2Agent { return &Phase2Agent{} }

// Phase returns 2.
func (a *Phase2Agent) Phase() int { return 2 }

// ValidateInputs requires phase 1's genre, themes, and worldSetting.
func (a *Phase2Agent) ValidateInputs(input ExecutionInput) error {
	p1, err := requirePhase(2, 1, input.Previous)
	if err != nil {
		return err
	}
	if err := requireStringField(2, p1, "genre"); err != nil {
		return err
	}
	if err := requireSliceField(2, p1, "themes"); err != nil {
		return err
	}
	if err := requireStringField(2, p1, "worldSetting"); err != nil {
		return err
	}
	return nil
}

func (a *Phase2Agent) BuildPrompt(input ExecutionInput) string {
	p1 := input.Previous[1]
	var b strings.Builder
	b.WriteString("You are a character designer. Given the following story analysis, produce ")
	b.WriteString("a character arc and a visual style guide entry for each named character. ")
	b.WriteString("Respond with a ```json fenced object with keys characterArcs (map name -> ")
	b.WriteString("{arc, motivation, growth}), styleGuide (map), metrics.\n\nGenre: ")
	if genre, ok := getString(p1, "genre"); ok {
		b.WriteString(genre)
	}
	b.WriteString("\n")
	return b.String()
}

func (a *Phase2Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	arcs, ok := getMapField(structured, "characterArcs")
	return ok && len(arcs) > 0
}

func (a *Phase2Agent) Fallback(input ExecutionInput) map[string]any {
	names := characterNamesFrom(input.Previous[1])
	if len(names) == 0 {
		names = []string{"Protagonist"}
	}
	arcs := make(map[string]any, len(names))
	for _, name := range names {
		arcs[name] = map[string]any{
			"arc":        "steady growth through adversity",
			"motivation": "an unresolved want established in phase one",
			"growth":     "gains confidence by the story's end",
		}
	}
	return map[string]any{
		"characterArcs": arcs,
		"styleGuide": map[string]any{
			"palette":     []any{"muted earth tones"},
			"lineWeight":  "medium",
			"renderStyle": "semi-realistic",
		},
		"metrics": map[string]any{
			"characterConsistency": 0.5, "visualAppeal": 0.5, "creativity": 0.4, "technical": 0.5,
		},
	}
}

func characterNamesFrom(p1 map[string]any) []string {
	chars, ok := getSlice(p1, "characters")
	if !ok {
		return nil
	}
	var names []string
	for _, raw := range chars {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := getString(c, "name"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (a *Phase2Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	if _, ok := structured["styleGuide"]; !ok {
		structured["styleGuide"] = map[string]any{}
	}
	if _, ok := structured["metrics"]; !ok {
		structured["metrics"] = map[string]any{}
	}
	return structured
}

func (a *Phase2Agent) ValidateOutput(structured map[string]any) error {
	arcs, ok := getMapField(structured, "characterArcs")
	if !ok || len(arcs) == 0 {
		return fieldErr(2, "characterArcs", "expected at least one character arc")
	}
	return nil
}

func (a *Phase2Agent) GeneratePreview(structured map[string]any) map[string]any {
	arcs, _ := getMapField(structured, "characterArcs")
	names := make([]string, 0, len(arcs))
	for name := range arcs {
		names = append(names, name)
	}
	return map[string]any{"characters": names}
}
