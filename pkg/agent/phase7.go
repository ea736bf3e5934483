package agent

import (
	"sort"
	"strconv"
	"strings"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/quality"
)

// Phase7Agent compiles per-page composite manifests, runs the cross-phase
// quality assessment over phases 1..6, and emits the final output
// manifest the caller retrieves on session completion.
type Phase7Agent struct{}

// NewPhase7Agent constructs a Phase7Agent.
func NewPhase7Agent() *Phase7Agent { return &Phase7Agent{} }

// Phase returns 7.
func (a *Phase7Agent) Phase() int { return 7 }

// ValidateInputs requires all six prior phases, with phase 4 exposing
// pages/panels, phase 5 exposing images, and phase 6 exposing balloons.
func (a *Phase7Agent) ValidateInputs(input ExecutionInput) error {
	for _, dep := range []int{1, 2, 3, 4, 5, 6} {
		if _, err := requirePhase(7, dep, input.Previous); err != nil {
			return err
		}
	}
	p4 := input.Previous[4]
	if _, ok := getMapField(p4, "pages"); !ok {
		return fieldErr(7, "pages", "expected phase 4 to supply pages")
	}
	p5 := input.Previous[5]
	if _, ok := getMapField(p5, "images"); !ok {
		return fieldErr(7, "images", "expected phase 5 to supply images")
	}
	p6 := input.Previous[6]
	if _, ok := getMapField(p6, "balloons"); !ok {
		return fieldErr(7, "balloons", "expected phase 6 to supply balloons")
	}
	return nil
}

func (a *Phase7Agent) BuildPrompt(input ExecutionInput) string {
	var b strings.Builder
	b.WriteString("You are a production editor compiling the final comic manifest. Summarize ")
	b.WriteString("each page into a composite description drawing on its panels, images, and ")
	b.WriteString("dialogue. Respond with a ```json fenced object with keys pages (map page -> ")
	b.WriteString("{summary, panelCount}), metrics.\n")
	return b.String()
}

func (a *Phase7Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	pages, ok := getMapField(structured, "pages")
	return ok && len(pages) > 0
}

func (a *Phase7Agent) Fallback(input ExecutionInput) map[string]any {
	p4Pages, _ := getMapField(input.Previous[4], "pages")
	pages := make(map[string]any, len(p4Pages))
	for key, raw := range p4Pages {
		page, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		panels, _ := getSlice(page, "panels")
		pages[key] = map[string]any{
			"summary":    "A composited page of " + strconv.Itoa(len(panels)) + " panel(s).",
			"panelCount": len(panels),
		}
	}
	return map[string]any{
		"pages": pages,
		"metrics": map[string]any{
			"coherence": 0.5, "technical": 0.5, "readability": 0.5, "composite": 0.5,
		},
	}
}

func (a *Phase7Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	if _, ok := structured["metrics"]; !ok {
		structured["metrics"] = map[string]any{}
	}
	return structured
}

func (a *Phase7Agent) ValidateOutput(structured map[string]any) error {
	pages, ok := getMapField(structured, "pages")
	if !ok || len(pages) == 0 {
		return fieldErr(7, "pages", "expected at least one compiled page")
	}
	return nil
}

// GeneratePreview summarizes the compiled manifest as its page count; it
// does not include a cross-phase quality assessment (see AssessAllPhases).
func (a *Phase7Agent) GeneratePreview(structured map[string]any) map[string]any {
	pages, _ := getMapField(structured, "pages")
	return map[string]any{"pageCount": len(pages)}
}

// AssessAllPhases runs the quality assessor over phases 1..7 (7 being the
// just-completed output), producing a per-phase scorecard. The orchestrator
// does not call it: the driver scores each phase with quality.Assess as the
// phase completes, and no scorecard is attached to the completed session.
// Exported because this
// cross-phase aggregation is distinct from any single PhaseAgent's own
// ValidateOutput/GeneratePreview and belongs to phase 7's broader mandate
// rather than the shared Executor contract.
func AssessAllPhases(outputs map[int]pipeline.PhaseOutput) map[int]pipeline.QualityScore {
	scores := make(map[int]pipeline.QualityScore, len(outputs))
	phases := make([]int, 0, len(outputs))
	for phase := range outputs {
		phases = append(phases, phase)
	}
	sort.Ints(phases)
	for _, phase := range phases {
		previous := make(map[int]pipeline.PhaseOutput, phase-1)
		for dep, out := range outputs {
			if dep < phase {
				previous[dep] = out
			}
		}
		scores[phase] = quality.Assess(phase, outputs[phase], previous)
	}
	return scores
}
