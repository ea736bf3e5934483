package modelgateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGateway_Deterministic(t *testing.T) {
	g := NewStubGateway()
	ctx := context.Background()

	resp1, err := g.GenerateText(ctx, TextRequest{Phase: 1, Prompt: "same prompt"})
	require.NoError(t, err)
	resp2, err := g.GenerateText(ctx, TextRequest{Phase: 1, Prompt: "same prompt"})
	require.NoError(t, err)

	assert.Equal(t, resp1.Content, resp2.Content)
}

func TestStubGateway_DifferentPromptsDifferentOutput(t *testing.T) {
	g := NewStubGateway()
	ctx := context.Background()

	a, err := g.GenerateText(ctx, TextRequest{Phase: 1, Prompt: "prompt a"})
	require.NoError(t, err)
	b, err := g.GenerateText(ctx, TextRequest{Phase: 1, Prompt: "prompt b"})
	require.NoError(t, err)

	assert.NotEqual(t, a.Content, b.Content)
}

func TestStubGateway_Image(t *testing.T) {
	g := NewStubGateway()
	resp, err := g.GenerateImage(context.Background(), ImageRequest{Prompt: "a panel"})
	require.NoError(t, err)
	assert.Contains(t, resp.ImageURL, "stub://image/")
	assert.Contains(t, resp.ThumbnailURL, "stub://thumbnail/")
	assert.GreaterOrEqual(t, resp.Quality, 0.7)
	assert.LessOrEqual(t, resp.Quality, 0.95)
}

func TestStubGateway_Image_QualityDeterministicPerRequest(t *testing.T) {
	g := NewStubGateway()
	req := ImageRequest{Prompt: "a panel", NegativePrompt: "blurry", StyleParameters: map[string]any{"palette": "noir"}}

	r1, err := g.GenerateImage(context.Background(), req)
	require.NoError(t, err)
	r2, err := g.GenerateImage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, r1.Quality, r2.Quality)
}
