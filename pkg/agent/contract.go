// Package agent implements the seven phase agents sharing one execution
// contract (spec §4.2): validate inputs, build a prompt, invoke the model
// gateway, lenient-parse its response, fall back to a deterministic
// generator on any failure, complete defaults, validate the final output,
// and generate an HITL preview. The contract is expressed here as a
// generic Executor wrapping a per-phase PhaseAgent implementation, grounded
// on the teacher's BaseAgent/ExecutionContext split
// (pkg/agent/base_agent.go, pkg/agent/agent.go) which factors "call the
// model, handle the response, build a result" into one reusable shape that
// concrete stage agents plug phase-specific behavior into.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/modelgateway"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// ExecutionInput is everything a phase agent needs to run: the caller's
// original text, the outputs of every prior completed phase (keyed by
// phase number, direct access per spec §9's resolution of the phase-6
// dependency question), and the session's generation parameters.
type ExecutionInput struct {
	InputText string
	Previous  map[int]pipeline.PhaseOutput
	Params    pipeline.GenerationParameters

	// Feedback carries the most recent rejected-feedback payload when the
	// orchestrator is re-running this phase after a HITL rejection (spec
	// §4.1's SubmitFeedback rejected path). Nil on a first attempt.
	Feedback map[string]any
}

// ExecutionOutput is the result of one successful Execute call.
type ExecutionOutput struct {
	Output     pipeline.PhaseOutput
	Preview    map[string]any
	AIAssisted bool
}

// PhaseAgent is the set of phase-specific behaviors the generic Executor
// drives. Every one of the seven agents implements this.
type PhaseAgent interface {
	Phase() int

	// ValidateInputs checks the dependency matrix (spec §4.2 table) against
	// input.Previous. Deterministic, no I/O. A failure here is never
	// retried — it is a prior-phase contract violation.
	ValidateInputs(input ExecutionInput) error

	// BuildPrompt is a pure function from input to the text prompt sent to
	// the model gateway.
	BuildPrompt(input ExecutionInput) string

	// PostCheck is the agent-specific sanity check run on a successfully
	// parsed model response before it is accepted in place of the fallback
	// (spec §4.2 step 4).
	PostCheck(structured map[string]any) bool

	// Fallback deterministically synthesizes an output when the model
	// path is unavailable or fails PostCheck/ValidateOutput.
	Fallback(input ExecutionInput) map[string]any

	// CompleteWithDefaults fills mandatory fields the model (or fallback)
	// output omitted, with neutral defaults.
	CompleteWithDefaults(structured map[string]any) map[string]any

	// ValidateOutput enforces the phase's output schema and structural
	// constraints. Returning an error here against a fallback output is
	// fatal for the phase (ErrFallbackInvalid).
	ValidateOutput(structured map[string]any) error

	// GeneratePreview builds the HITL-facing summary for this output.
	GeneratePreview(structured map[string]any) map[string]any
}

// FeedbackApplier may be implemented by a PhaseAgent that wants to
// re-prompt the model on feedback instead of the default merge-only
// behavior (spec §4.2's "agents may override").
type FeedbackApplier interface {
	ApplyFeedback(ctx context.Context, output pipeline.PhaseOutput, feedback map[string]any) (pipeline.PhaseOutput, error)
}

// ApplyFeedbackDefault merges feedback into output metadata without
// re-invoking the model, per spec §4.2's default ApplyFeedback.
func ApplyFeedbackDefault(output pipeline.PhaseOutput, feedback map[string]any) pipeline.PhaseOutput {
	out := make(pipeline.PhaseOutput, len(output)+2)
	for k, v := range output {
		out[k] = v
	}
	out["feedbackApplied"] = feedback
	out["revisedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return out
}

// Executor drives PhaseAgent implementations through the shared execution
// contract over a modelgateway.Gateway.
type Executor struct {
	Gateway modelgateway.Gateway
}

// NewExecutor constructs an Executor bound to gateway.
func NewExecutor(gateway modelgateway.Gateway) *Executor {
	return &Executor{Gateway: gateway}
}

// Execute runs the shared contract for one PhaseAgent. The returned error,
// when non-nil, is one of:
//   - *pipeline.ValidationError wrapping pipeline.ErrInputValidation (never retried)
//   - pipeline.ErrFallbackInvalid (never retried, fatal for the phase)
//   - pipeline.ErrRetryExhausted (the model path failed and fallback is disabled)
//   - pipeline.ErrCancelled (ctx was cancelled; never retried)
//   - an error wrapping pipeline.ErrBackendTransient (retryable by the orchestrator)
func (e *Executor) Execute(ctx context.Context, pa PhaseAgent, input ExecutionInput) (ExecutionOutput, error) {
	if err := pa.ValidateInputs(input); err != nil {
		return ExecutionOutput{}, err
	}

	prompt := pa.BuildPrompt(input)
	if len(input.Feedback) > 0 {
		prompt = appendFeedbackNote(prompt, input.Feedback)
	}
	cfg := input.Params.ModelConfigFor(pa.Phase())

	var structured map[string]any
	aiAssisted := false

	resp, genErr := e.Gateway.GenerateText(ctx, modelgateway.TextRequest{
		Phase:       pa.Phase(),
		Prompt:      prompt,
		ModelID:     cfg.ModelID,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
		MaxTokens:   cfg.MaxTokens,
	})

	switch {
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.Canceled) {
			return ExecutionOutput{}, pipeline.ErrCancelled
		}
		return ExecutionOutput{}, fmt.Errorf("%w: %v", pipeline.ErrBackendTransient, ctx.Err())
	case genErr != nil:
		structured = nil
	default:
		parsed, parseErr := ExtractJSON(resp.Content)
		if parseErr != nil || !pa.PostCheck(parsed) {
			structured = nil
		} else {
			structured = parsed
			aiAssisted = true
		}
	}

	if structured == nil {
		if !input.Params.FallbackEnabled {
			return ExecutionOutput{}, fmt.Errorf("%w: model failed and fallback disabled", pipeline.ErrRetryExhausted)
		}
		structured = pa.Fallback(input)
		aiAssisted = false
	}

	structured = pa.CompleteWithDefaults(structured)
	if err := pa.ValidateOutput(structured); err != nil {
		if aiAssisted {
			// Model output failed the final validator: fall back and
			// revalidate before giving up (spec §4.2 step 4/6 interplay).
			structured = pa.CompleteWithDefaults(pa.Fallback(input))
			aiAssisted = false
			if err := pa.ValidateOutput(structured); err != nil {
				return ExecutionOutput{}, fmt.Errorf("%w: %v", pipeline.ErrFallbackInvalid, err)
			}
		} else {
			return ExecutionOutput{}, fmt.Errorf("%w: %v", pipeline.ErrFallbackInvalid, err)
		}
	}

	preview := pa.GeneratePreview(structured)
	return ExecutionOutput{
		Output:     pipeline.PhaseOutput(structured),
		Preview:    preview,
		AIAssisted: aiAssisted,
	}, nil
}

// appendFeedbackNote appends a rejected-feedback summary to prompt so a
// HITL re-run's model call actually sees what the reviewer rejected,
// rather than repeating the original prompt verbatim (spec §4.1's
// "the phase is re-run with feedback injected into its input").
func appendFeedbackNote(prompt string, feedback map[string]any) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nA previous attempt was rejected in human review with this feedback:\n")
	for key, value := range feedback {
		if strings.HasPrefix(key, "__") {
			continue
		}
		fmt.Fprintf(&b, "- %s: %v\n", key, value)
	}
	b.WriteString("Address this feedback in your revised response.\n")
	return b.String()
}

// ExtractJSON performs the lenient JSON extraction of spec §4.2: first a
// ```json fenced block, then the substring from the first '{' to the last
// '}', finally a plain unmarshal attempt. Never panics; returns an error on
// total failure so the caller can invoke its fallback.
func ExtractJSON(text string) (map[string]any, error) {
	if candidate, ok := extractFencedJSON(text); ok {
		if m, err := unmarshalObject(candidate); err == nil {
			return m, nil
		}
	}
	if candidate, ok := extractBracedJSON(text); ok {
		if m, err := unmarshalObject(candidate); err == nil {
			return m, nil
		}
	}
	if m, err := unmarshalObject(text); err == nil {
		return m, nil
	}
	return nil, fmt.Errorf("no parseable JSON object found in model response")
}

func extractFencedJSON(text string) (string, bool) {
	const fenceOpen = "```json"
	start := strings.Index(text, fenceOpen)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(fenceOpen):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func extractBracedJSON(text string) (string, bool) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return "", false
	}
	return text[first : last+1], true
}

func unmarshalObject(text string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// getString, getStringSlice, getMap are small defensive accessors used by
// agent PostCheck/ValidateOutput implementations against the opaque
// map[string]any structured output, standing in for compile-time field
// access where the dependency matrix (spec §4.2) instead calls for runtime
// presence/type checks on a prior phase's declared keys.

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getSlice(m map[string]any, key string) ([]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

func getMapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	s, ok := v.(map[string]any)
	return s, ok
}
