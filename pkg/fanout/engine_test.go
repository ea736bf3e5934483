package fanout

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/storyforge/pkg/cache"
	"github.com/inkwell-ai/storyforge/pkg/modelgateway"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// fakeImageGateway generates deterministic image responses, or fails the
// first failUntilCalls calls for a given prompt, to exercise retry.
type fakeImageGateway struct {
	mu             sync.Mutex
	callsByPrompt  map[string]int
	failUntilCalls int
	concurrent     int32
	maxConcurrent  int32
}

func (g *fakeImageGateway) GenerateText(ctx context.Context, req modelgateway.TextRequest) (modelgateway.TextResponse, error) {
	return modelgateway.TextResponse{}, nil
}

func (g *fakeImageGateway) GenerateImage(ctx context.Context, req modelgateway.ImageRequest) (modelgateway.ImageResponse, error) {
	cur := atomic.AddInt32(&g.concurrent, 1)
	defer atomic.AddInt32(&g.concurrent, -1)
	for {
		max := atomic.LoadInt32(&g.maxConcurrent)
		if cur <= max || atomic.CompareAndSwapInt32(&g.maxConcurrent, max, cur) {
			break
		}
	}

	g.mu.Lock()
	if g.callsByPrompt == nil {
		g.callsByPrompt = map[string]int{}
	}
	g.callsByPrompt[req.Prompt]++
	calls := g.callsByPrompt[req.Prompt]
	g.mu.Unlock()

	if calls <= g.failUntilCalls {
		return modelgateway.ImageResponse{}, errors.New("transient backend failure")
	}
	return modelgateway.ImageResponse{
		ImageURL:     "https://example.test/" + req.Prompt,
		ThumbnailURL: "thumb",
		Quality:      fakeQuality(req.Prompt),
	}, nil
}

// fakeQuality derives a stable [0,1] quality score from the prompt alone, so
// the fake gateway stands in for a backend that reports a real, request-
// dependent quality score rather than a constant one.
func fakeQuality(prompt string) float64 {
	sum := sha256.Sum256([]byte(prompt))
	n := binary.BigEndian.Uint32(sum[:4])
	return float64(n%1000) / 1000.0
}

func noopSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestEngine(gw modelgateway.Gateway, maxParallel int) *Engine {
	e := NewEngine(gw, cache.New(time.Minute, time.Minute), maxParallel)
	e.sleep = noopSleep
	return e
}

func TestEngine_Run_PreservesSubmissionOrderAcrossPriority(t *testing.T) {
	gw := &fakeImageGateway{}
	e := newTestEngine(gw, 4)

	tasks := []pipeline.ImageGenerationTask{
		{PanelID: "low", Prompt: "low", Priority: 1},
		{PanelID: "high", Prompt: "high", Priority: 9},
		{PanelID: "mid", Prompt: "mid", Priority: 5},
	}
	results := e.Run(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].PanelID, "results follow the priority-sorted submission index, not input order")
	assert.Equal(t, "mid", results[1].PanelID)
	assert.Equal(t, "low", results[2].PanelID)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestEngine_Run_BoundsConcurrency(t *testing.T) {
	gw := &fakeImageGateway{}
	e := newTestEngine(gw, 2)

	tasks := make([]pipeline.ImageGenerationTask, 8)
	for i := range tasks {
		tasks[i] = pipeline.ImageGenerationTask{PanelID: string(rune('a' + i)), Prompt: string(rune('a' + i)), Priority: 5}
	}
	e.Run(context.Background(), tasks)

	assert.LessOrEqual(t, int(gw.maxConcurrent), 2)
}

func TestEngine_Run_RetriesThenSucceeds(t *testing.T) {
	gw := &fakeImageGateway{failUntilCalls: 2}
	e := newTestEngine(gw, 1)

	results := e.Run(context.Background(), []pipeline.ImageGenerationTask{
		{PanelID: "p1", Prompt: "retry-me", Priority: 5, MaxRetries: 3},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 2, results[0].RetryCount)
}

func TestEngine_Run_ExhaustsRetriesAndFails(t *testing.T) {
	gw := &fakeImageGateway{failUntilCalls: 100}
	e := newTestEngine(gw, 1)

	results := e.Run(context.Background(), []pipeline.ImageGenerationTask{
		{PanelID: "p1", Prompt: "always-fails", Priority: 5, MaxRetries: 2},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].ErrorMessage)
}

func TestEngine_Run_CacheHitSkipsSecondCall(t *testing.T) {
	gw := &fakeImageGateway{}
	e := newTestEngine(gw, 2)

	task := pipeline.ImageGenerationTask{PanelID: "p1", Prompt: "dup", Priority: 5}
	first := e.Run(context.Background(), []pipeline.ImageGenerationTask{task})
	require.True(t, first[0].Success)
	require.False(t, first[0].CacheHit)

	second := e.Run(context.Background(), []pipeline.ImageGenerationTask{task})
	require.True(t, second[0].Success)
	assert.True(t, second[0].CacheHit)

	gw.mu.Lock()
	calls := gw.callsByPrompt["dup"]
	gw.mu.Unlock()
	assert.Equal(t, 1, calls, "second run should be served from cache, not the backend")
}

func TestEngine_Run_CancelledContextMarksRemainingCancelled(t *testing.T) {
	gw := &fakeImageGateway{}
	e := newTestEngine(gw, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.Run(ctx, []pipeline.ImageGenerationTask{
		{PanelID: "p1", Prompt: "a", Priority: 5},
		{PanelID: "p2", Prompt: "b", Priority: 5},
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
	}
}

func TestEngine_Run_DeterministicQualityScoreStableAcrossRuns(t *testing.T) {
	gw1 := &fakeImageGateway{}
	e1 := newTestEngine(gw1, 1)
	r1 := e1.Run(context.Background(), []pipeline.ImageGenerationTask{{PanelID: "p1", Prompt: "stable", Priority: 5}})

	gw2 := &fakeImageGateway{}
	e2 := newTestEngine(gw2, 1)
	r2 := e2.Run(context.Background(), []pipeline.ImageGenerationTask{{PanelID: "p1", Prompt: "stable", Priority: 5}})

	assert.Equal(t, r1[0].QualityScore, r2[0].QualityScore)
}
