package agent

import (
	"strconv"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// requirePhase returns the named prior phase's output, or a ValidationError
// if the orchestrator did not supply it — a prior-phase contract violation
// that should never happen when the orchestrator is driving phases in
// order, but is checked defensively per spec §4.2's dependency matrix.
func requirePhase(phase, dep int, previous map[int]pipeline.PhaseOutput) (map[string]any, error) {
	out, ok := previous[dep]
	if !ok {
		return nil, pipeline.NewValidationError(phase, "", errMissingPhase(dep))
	}
	return map[string]any(out), nil
}

func errMissingPhase(dep int) string {
	return "missing required output of phase " + strconv.Itoa(dep)
}

// fieldErr builds a *pipeline.ValidationError rooted in ErrInputValidation
// for the given phase/field/reason, the common shape every agent's
// ValidateInputs/ValidateOutput returns on failure.
func fieldErr(phase int, field, reason string) error {
	return pipeline.NewValidationError(phase, field, reason)
}

// requireStringField validates that m[key] is a non-empty string.
func requireStringField(phase int, m map[string]any, key string) error {
	v, ok := getString(m, key)
	if !ok || v == "" {
		return pipeline.NewValidationError(phase, key, "expected non-empty string field \""+key+"\"")
	}
	return nil
}

// requireSliceField validates that m[key] is a present, non-nil slice.
func requireSliceField(phase int, m map[string]any, key string) error {
	v, ok := getSlice(m, key)
	if !ok || v == nil {
		return pipeline.NewValidationError(phase, key, "expected list field \""+key+"\"")
	}
	return nil
}

// requireScenesCanonical enforces spec §4.2/§9's rejection of the
// deprecated `scene_breakdown` alias: phase 3's output must expose
// `scenes` directly; a payload carrying only `scene_breakdown` is an
// upstream contract violation, not something this phase silently maps.
func requireScenesCanonical(phase int, phase3Output map[string]any) error {
	if _, ok := getSlice(phase3Output, "scenes"); ok {
		return nil
	}
	if _, ok := phase3Output["scene_breakdown"]; ok {
		return pipeline.NewValidationError(phase, "scenes",
			"phase 3 output exposes deprecated \"scene_breakdown\" instead of canonical \"scenes\"")
	}
	return pipeline.NewValidationError(phase, "scenes", "phase 3 output missing \"scenes\"")
}
