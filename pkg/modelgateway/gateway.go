// Package modelgateway adapts the pipeline's phase agents to whatever
// generative backend is configured: a real HTTP/JSON model endpoint or a
// deterministic in-process stub used in tests and as the terminal fallback
// path. It replaces the teacher's gRPC/protobuf LLM client (pkg/llm) with a
// plain net/http client, since the .proto-generated stub that client
// depends on cannot be regenerated here.
package modelgateway

import (
	"context"
	"time"
)

// TextRequest is one text-generation call issued by a phase agent.
type TextRequest struct {
	Phase       int
	Prompt      string
	ModelID     string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// TextResponse is the raw model output for a TextRequest. Content is the
// unparsed model text; callers (agents) are responsible for lenient JSON
// extraction.
type TextResponse struct {
	Content      string
	ModelID      string
	LatencyMs    int64
	FinishReason string
}

// ImageRequest is one image-generation call, one per panel, issued by the
// phase-5 fan-out engine.
type ImageRequest struct {
	Prompt          string
	NegativePrompt  string
	StyleParameters map[string]any
	ModelID         string
}

// ImageResponse is the raw model output for an ImageRequest. Quality is the
// backend's own self-reported [0,1] quality score for the generated image
// (spec.md's `GenerateImages(...) -> [{url, quality}]` interface); the
// fan-out engine folds it into ImageGenerationResult rather than fabricate
// one of its own.
type ImageResponse struct {
	ImageURL     string
	ThumbnailURL string
	Quality      float64
	LatencyMs    int64
}

// Gateway is the interface every phase agent and the fan-out engine depend
// on. Real implementations must never panic; backend failures surface as
// errors wrapping pipeline.ErrBackendTransient (or pipeline.ErrParseSchema
// for a response that cannot be used) so callers can retry or fall back.
type Gateway interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error)
}

// nowFunc lets tests substitute a deterministic duration measurement; kept as
// a package variable rather than an injected dependency to avoid threading
// it through every constructor, mirroring the teacher's use of package-level
// log.Printf for cross-cutting concerns.
var nowFunc = time.Now
