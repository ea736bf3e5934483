package agent

import "strings"

// bubbleStyles is the fixed enum phase 6 bubbles must draw style from.
var bubbleStyles = []string{"speech", "thought", "shout", "whisper", "narration"}

// Phase6Agent generates dialogue and text-balloon placements anchored to
// phase 4's panels, using phase 3's canonical scenes for narrative content
// and phase 5's per-panel image descriptions for placement context.
type Phase6Agent struct{}

// NewPhase6Agent constructs a Phase6Agent.
func NewPhase6Agent() *Phase6Agent { return &Phase6Agent{} }

// Phase returns 6.
func (a *Phase6Agent) Phase() int { return 6 }

// ValidateInputs requires phases 1..3 and 5 directly (spec §4.2's
// dependency matrix row for phase 6), with phase 3 exposing canonical
// scenes and phase 5 exposing per-panel image descriptions.
func (a *Phase6Agent) ValidateInputs(input ExecutionInput) error {
	if _, err := requirePhase(6, 1, input.Previous); err != nil {
		return err
	}
	if _, err := requirePhase(6, 2, input.Previous); err != nil {
		return err
	}
	p3, err := requirePhase(6, 3, input.Previous)
	if err != nil {
		return err
	}
	if err := requireScenesCanonical(6, p3); err != nil {
		return err
	}
	p5, err := requirePhase(6, 5, input.Previous)
	if err != nil {
		return err
	}
	images, ok := getMapField(p5, "images")
	if !ok || len(images) == 0 {
		return fieldErr(6, "images", "expected phase 5 to supply image descriptions per panel")
	}
	return nil
}

func (a *Phase6Agent) BuildPrompt(input ExecutionInput) string {
	var b strings.Builder
	b.WriteString("You are a letterer. For each panel, produce dialogue and/or narration text ")
	b.WriteString("balloons anchored to the panel, each with a bubbleStyle drawn from ")
	b.WriteString("speech|thought|shout|whisper|narration and the text content. Respond with a ")
	b.WriteString("```json fenced object with keys balloons (map panelId -> [{bubbleStyle, text, ")
	b.WriteString("speaker}]), metrics.\n")
	return b.String()
}

func (a *Phase6Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	balloons, ok := getMapField(structured, "balloons")
	return ok && len(balloons) > 0
}

func (a *Phase6Agent) Fallback(input ExecutionInput) map[string]any {
	p5 := input.Previous[5]
	images, _ := getMapField(p5, "images")
	balloons := make(map[string]any, len(images))
	for panelID := range images {
		balloons[panelID] = []any{
			map[string]any{"bubbleStyle": "narration", "text": "...", "speaker": ""},
		}
	}
	return map[string]any{
		"balloons": balloons,
		"metrics": map[string]any{
			"coherence": 0.5, "readability": 0.5, "technical": 0.5, "creativity": 0.4,
		},
	}
}

func (a *Phase6Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	if _, ok := structured["metrics"]; !ok {
		structured["metrics"] = map[string]any{}
	}
	return structured
}

func (a *Phase6Agent) ValidateOutput(structured map[string]any) error {
	balloons, ok := getMapField(structured, "balloons")
	if !ok || len(balloons) == 0 {
		return fieldErr(6, "balloons", "expected at least one panel's balloons")
	}
	for panelID, raw := range balloons {
		entries, ok := raw.([]any)
		if !ok || len(entries) == 0 {
			return fieldErr(6, "balloons["+panelID+"]", "expected a non-empty list of balloons")
		}
		for _, entryRaw := range entries {
			entry, ok := entryRaw.(map[string]any)
			if !ok {
				return fieldErr(6, "balloons["+panelID+"][]", "expected object")
			}
			if err := validateBubbleStyle(panelID, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBubbleStyle(panelID string, entry map[string]any) error {
	style, _ := getString(entry, "bubbleStyle")
	for _, candidate := range bubbleStyles {
		if style == candidate {
			return nil
		}
	}
	return fieldErr(6, "balloons["+panelID+"][].bubbleStyle", "expected one of "+strings.Join(bubbleStyles, "|"))
}

func (a *Phase6Agent) GeneratePreview(structured map[string]any) map[string]any {
	balloons, _ := getMapField(structured, "balloons")
	count := 0
	for _, raw := range balloons {
		entries, _ := raw.([]any)
		count += len(entries)
	}
	return map[string]any{"balloonCount": count, "panelsWithDialogue": len(balloons)}
}
