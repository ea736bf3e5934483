package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/storyforge/pkg/modelgateway"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"genre\": \"fantasy\", \"scenes\": [1,2,3]}\n```\nThanks."
	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "fantasy", m["genre"])
}

func TestExtractJSON_BracedSubstring(t *testing.T) {
	text := "Sure, {\"genre\": \"noir\"} is what I'd suggest."
	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "noir", m["genre"])
}

func TestExtractJSON_RawObject(t *testing.T) {
	text := `{"genre": "scifi"}`
	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "scifi", m["genre"])
}

func TestExtractJSON_Unparseable(t *testing.T) {
	_, err := ExtractJSON("not json at all, sorry")
	assert.Error(t, err)
}

// scriptedGateway returns canned well-formed JSON for GenerateText,
// letting tests exercise the AI-assisted success path distinctly from the
// fallback cascade a bare StubGateway always triggers.
type scriptedGateway struct {
	textFn func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error)
}

func (g scriptedGateway) GenerateText(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
	return g.textFn(ctx, req)
}

func (g scriptedGateway) GenerateImage(ctx context.Context, req modelgateway.ImageRequest) (modelgateway.ImageResponse, error) {
	return modelgateway.ImageResponse{}, nil
}

func TestExecutor_Execute_AIAssistedSuccess(t *testing.T) {
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		return modelgateway.TextResponse{Content: `{"genre":"fantasy","scenes":[{"id":1,"description":"opening","emotionalIntensity":5,"importance":"high"},{"id":2,"description":"rising","emotionalIntensity":6,"importance":"medium"},{"id":3,"description":"climax","emotionalIntensity":9,"importance":"high"}]}`}, nil
	}}
	executor := NewExecutor(gw)
	out, err := executor.Execute(context.Background(), NewPhase1Agent(), ExecutionInput{
		InputText: "a hero's journey",
		Params:    pipeline.DefaultParameters(),
	})
	require.NoError(t, err)
	assert.True(t, out.AIAssisted)
	assert.Equal(t, "fantasy", out.Output["genre"])
}

func TestExecutor_Execute_FallsBackOnUnparsableResponse(t *testing.T) {
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		return modelgateway.TextResponse{Content: "not json"}, nil
	}}
	executor := NewExecutor(gw)
	out, err := executor.Execute(context.Background(), NewPhase1Agent(), ExecutionInput{
		InputText: "a hero's journey",
		Params:    pipeline.DefaultParameters(),
	})
	require.NoError(t, err)
	assert.False(t, out.AIAssisted)
	assert.NotEmpty(t, out.Output["genre"])
	assert.NotEmpty(t, out.Output["scenes"])
}

func TestExecutor_Execute_BackendErrorFallsBack(t *testing.T) {
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		return modelgateway.TextResponse{}, errors.New("backend unavailable")
	}}
	executor := NewExecutor(gw)
	out, err := executor.Execute(context.Background(), NewPhase1Agent(), ExecutionInput{
		InputText: "a hero's journey",
		Params:    pipeline.DefaultParameters(),
	})
	require.NoError(t, err)
	assert.False(t, out.AIAssisted)
}

func TestExecutor_Execute_FallbackDisabledReturnsRetryExhausted(t *testing.T) {
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		return modelgateway.TextResponse{}, errors.New("backend unavailable")
	}}
	executor := NewExecutor(gw)
	params := pipeline.DefaultParameters()
	params.FallbackEnabled = false
	_, err := executor.Execute(context.Background(), NewPhase1Agent(), ExecutionInput{
		InputText: "a hero's journey",
		Params:    params,
	})
	assert.True(t, errors.Is(err, pipeline.ErrRetryExhausted))
}

func TestExecutor_Execute_ValidationErrorNeverCallsGateway(t *testing.T) {
	called := false
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		called = true
		return modelgateway.TextResponse{}, nil
	}}
	executor := NewExecutor(gw)
	_, err := executor.Execute(context.Background(), NewPhase1Agent(), ExecutionInput{
		InputText: "",
		Params:    pipeline.DefaultParameters(),
	})
	assert.Error(t, err)
	assert.False(t, called, "ValidateInputs failure must short-circuit before any gateway call")
}

func TestExecutor_Execute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := scriptedGateway{textFn: func(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
		return modelgateway.TextResponse{}, ctx.Err()
	}}
	executor := NewExecutor(gw)
	_, err := executor.Execute(ctx, NewPhase1Agent(), ExecutionInput{
		InputText: "a hero's journey",
		Params:    pipeline.DefaultParameters(),
	})
	assert.True(t, errors.Is(err, pipeline.ErrCancelled))
}

func TestAppendFeedbackNote_SkipsInternalKeys(t *testing.T) {
	prompt := appendFeedbackNote("base prompt", map[string]any{
		"__recordID": "abc",
		"reason":     "too dark",
	})
	assert.Contains(t, prompt, "too dark")
	assert.NotContains(t, prompt, "__recordID")
}

func TestApplyFeedbackDefault_MergesWithoutMutatingOriginal(t *testing.T) {
	original := pipeline.PhaseOutput{"genre": "fantasy"}
	merged := ApplyFeedbackDefault(original, map[string]any{"reason": "too slow"})
	assert.Equal(t, "fantasy", merged["genre"])
	assert.NotNil(t, merged["feedbackApplied"])
	_, hasFeedback := original["feedbackApplied"]
	assert.False(t, hasFeedback, "original output must not be mutated")
}
