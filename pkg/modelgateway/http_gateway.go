package modelgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// HTTPGateway is a thin, never-panicking adapter over an OpenAI-compatible
// chat-completions endpoint and a sibling image-generation endpoint. It
// reads its base URL and API key from environment variables named by
// config.ModelProviderConfig, following the teacher's env-driven
// pkg/llm.NewClient pattern.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	log        *slog.Logger
}

// NewHTTPGateway builds an HTTPGateway from environment variable names
// (rather than raw values) so secrets never transit the config YAML.
func NewHTTPGateway(baseURLEnv, apiKeyEnv, model string, timeout time.Duration) *HTTPGateway {
	baseURL := os.Getenv(baseURLEnv)
	apiKey := os.Getenv(apiKeyEnv)
	return &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		log:        slog.With("component", "modelgateway.http", "model", model),
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateText posts a single-turn chat-completion request and returns the
// first choice's content unparsed.
func (g *HTTPGateway) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	start := nowFunc()
	model := req.ModelID
	if model == "" {
		model = g.model
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return TextResponse{}, fmt.Errorf("%w: marshal request: %v", pipeline.ErrInternalInvariant, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return TextResponse{}, fmt.Errorf("%w: build request: %v", pipeline.ErrBackendTransient, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.log.WarnContext(ctx, "model backend request failed", "phase", req.Phase, "error", err)
		return TextResponse{}, fmt.Errorf("%w: %v", pipeline.ErrBackendTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return TextResponse{}, fmt.Errorf("%w: read response: %v", pipeline.ErrBackendTransient, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return TextResponse{}, fmt.Errorf("%w: backend returned status %d", pipeline.ErrBackendTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return TextResponse{}, fmt.Errorf("%w: backend returned status %d: %s", pipeline.ErrParseSchema, resp.StatusCode, string(data))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Choices) == 0 {
		return TextResponse{}, fmt.Errorf("%w: unparseable chat completion response", pipeline.ErrParseSchema)
	}

	return TextResponse{
		Content:      parsed.Choices[0].Message.Content,
		ModelID:      model,
		LatencyMs:    nowFunc().Sub(start).Milliseconds(),
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

type imageGenerationRequest struct {
	Model           string         `json:"model"`
	Prompt          string         `json:"prompt"`
	NegativePrompt  string         `json:"negative_prompt,omitempty"`
	StyleParameters map[string]any `json:"style_parameters,omitempty"`
}

type imageGenerationResponse struct {
	ImageURL     string  `json:"image_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	QualityScore float64 `json:"quality_score"`
}

// GenerateImage posts to the sibling image-generation endpoint.
func (g *HTTPGateway) GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error) {
	start := nowFunc()
	model := req.ModelID
	if model == "" {
		model = g.model
	}

	payload, err := json.Marshal(imageGenerationRequest{
		Model:           model,
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		StyleParameters: req.StyleParameters,
	})
	if err != nil {
		return ImageResponse{}, fmt.Errorf("%w: marshal request: %v", pipeline.ErrInternalInvariant, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return ImageResponse{}, fmt.Errorf("%w: build request: %v", pipeline.ErrBackendTransient, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return ImageResponse{}, fmt.Errorf("%w: %v", pipeline.ErrBackendTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ImageResponse{}, fmt.Errorf("%w: read response: %v", pipeline.ErrBackendTransient, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ImageResponse{}, fmt.Errorf("%w: backend returned status %d", pipeline.ErrBackendTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return ImageResponse{}, fmt.Errorf("%w: backend returned status %d: %s", pipeline.ErrParseSchema, resp.StatusCode, string(data))
	}

	var parsed imageGenerationResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.ImageURL == "" {
		return ImageResponse{}, fmt.Errorf("%w: unparseable image generation response", pipeline.ErrParseSchema)
	}

	return ImageResponse{
		ImageURL:     parsed.ImageURL,
		ThumbnailURL: parsed.ThumbnailURL,
		Quality:      parsed.QualityScore,
		LatencyMs:    nowFunc().Sub(start).Milliseconds(),
	}, nil
}
