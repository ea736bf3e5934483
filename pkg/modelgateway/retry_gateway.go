package modelgateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// RetryGateway wraps a Gateway with exponential backoff over
// pipeline.ErrBackendTransient failures, base 1s by default. It does not
// retry ErrParseSchema — a malformed response is not helped by asking
// again with the same prompt.
type RetryGateway struct {
	inner      Gateway
	maxRetries int
	baseDelay  time.Duration
	log        *slog.Logger
}

// NewRetryGateway wraps inner with up to maxRetries retries at the default
// 1s base backoff used for agent retries.
func NewRetryGateway(inner Gateway, maxRetries int) *RetryGateway {
	return NewRetryGatewayWithBackoff(inner, maxRetries, 1*time.Second)
}

// NewRetryGatewayWithBackoff wraps inner with an explicit base backoff
// delay, letting tests use a sub-millisecond delay instead of the
// production default.
func NewRetryGatewayWithBackoff(inner Gateway, maxRetries int, baseDelay time.Duration) *RetryGateway {
	return &RetryGateway{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        slog.With("component", "modelgateway.retry"),
	}
}

// GenerateText retries transient backend failures with exponential backoff.
func (g *RetryGateway) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := g.inner.GenerateText(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, pipeline.ErrBackendTransient) {
			return TextResponse{}, err
		}
		if attempt == g.maxRetries {
			break
		}
		if err := g.wait(ctx, attempt); err != nil {
			return TextResponse{}, err
		}
	}
	g.log.WarnContext(ctx, "text generation retries exhausted", "phase", req.Phase, "attempts", g.maxRetries+1)
	return TextResponse{}, errors.Join(pipeline.ErrRetryExhausted, lastErr)
}

// GenerateImage retries transient backend failures with exponential
// backoff, mirroring GenerateText.
func (g *RetryGateway) GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := g.inner.GenerateImage(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, pipeline.ErrBackendTransient) {
			return ImageResponse{}, err
		}
		if attempt == g.maxRetries {
			break
		}
		if err := g.wait(ctx, attempt); err != nil {
			return ImageResponse{}, err
		}
	}
	return ImageResponse{}, errors.Join(pipeline.ErrRetryExhausted, lastErr)
}

func (g *RetryGateway) wait(ctx context.Context, attempt int) error {
	delay := g.baseDelay << attempt
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(pipeline.ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
