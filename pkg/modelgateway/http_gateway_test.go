package modelgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_GenerateText_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message      chatMessage `json:"message"`
				FinishReason string      `json:"finish_reason"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"panels":[]}`}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	t.Setenv("SF_TEST_BASE", server.URL)
	t.Setenv("SF_TEST_KEY", "test-key")
	g := NewHTTPGateway("SF_TEST_BASE", "SF_TEST_KEY", "gpt-storyforge", 5*time.Second)

	resp, err := g.GenerateText(t.Context(), TextRequest{Phase: 1, Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, `{"panels":[]}`, resp.Content)
	assert.Equal(t, "gpt-storyforge", resp.ModelID)
}

func TestHTTPGateway_GenerateText_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	t.Setenv("SF_TEST_BASE2", server.URL)
	g := NewHTTPGateway("SF_TEST_BASE2", "", "gpt-storyforge", 5*time.Second)

	_, err := g.GenerateText(t.Context(), TextRequest{Phase: 1, Prompt: "hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBackendTransient)
}

func TestHTTPGateway_GenerateText_MalformedBodyIsParseSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	t.Setenv("SF_TEST_BASE3", server.URL)
	g := NewHTTPGateway("SF_TEST_BASE3", "", "gpt-storyforge", 5*time.Second)

	_, err := g.GenerateText(t.Context(), TextRequest{Phase: 1, Prompt: "hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrParseSchema)
}

func TestHTTPGateway_GenerateImage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		_ = json.NewEncoder(w).Encode(imageGenerationResponse{
			ImageURL:     "https://example.test/image.png",
			ThumbnailURL: "https://example.test/thumb.png",
			QualityScore: 0.87,
		})
	}))
	defer server.Close()

	t.Setenv("SF_TEST_BASE4", server.URL)
	g := NewHTTPGateway("SF_TEST_BASE4", "", "gpt-storyforge", 5*time.Second)

	resp, err := g.GenerateImage(t.Context(), ImageRequest{Prompt: "panel 1"})

	require.NoError(t, err)
	assert.Equal(t, "https://example.test/image.png", resp.ImageURL)
	assert.InDelta(t, 0.87, resp.Quality, 1e-9)
}
