package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/cache"
	"github.com/inkwell-ai/storyforge/pkg/modelgateway"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// Engine runs the Parallel Fan-Out Engine: a priority-ordered, bounded-
// concurrency scheduler over phase 5's image generation tasks, with
// content-addressed dedup via Cache and per-task retry with exponential
// backoff, grounded on the teacher's WorkerPool/Worker concurrency shape
// (pkg/queue/pool.go, pkg/queue/worker.go) adapted from a session-claiming
// queue to an in-process task-fan-out semaphore.
type Engine struct {
	Gateway     modelgateway.Gateway
	Cache       *cache.Store
	MaxParallel int

	// sleep is the backoff delay function; overridable in tests to avoid
	// real wall-clock sleeps while keeping Run's retry logic exercised.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine constructs an Engine bounded to maxParallel concurrent backend
// calls, backed by gateway and cache.
func NewEngine(gateway modelgateway.Gateway, store *cache.Store, maxParallel int) *Engine {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Engine{Gateway: gateway, Cache: store, MaxParallel: maxParallel, sleep: sleepWithContext}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks to completion (or cancellation), priority-descending
// stable-sorted first, and returns results ordered by submission index
// (spec §5: "ordered by task submission index, which equals priority-sorted
// input order"). The returned slice always has one entry per input task.
func (e *Engine) Run(ctx context.Context, tasks []pipeline.ImageGenerationTask) []pipeline.ImageGenerationResult {
	sorted := sortedByPriority(tasks)
	for i := range sorted {
		sorted[i].SubmissionIndex = i
	}

	results := make([]pipeline.ImageGenerationResult, len(sorted))
	sem := make(chan struct{}, e.MaxParallel)
	var wg sync.WaitGroup

	for i, task := range sorted {
		wg.Add(1)
		go func(i int, task pipeline.ImageGenerationTask) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = cancelledResult(task)
				return
			}
			results[i] = e.runTask(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return results
}

func sortedByPriority(tasks []pipeline.ImageGenerationTask) []pipeline.ImageGenerationTask {
	sorted := make([]pipeline.ImageGenerationTask, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}

func cancelledResult(task pipeline.ImageGenerationTask) pipeline.ImageGenerationResult {
	return pipeline.ImageGenerationResult{
		PanelID:      task.PanelID,
		Success:      false,
		RetryCount:   task.RetryCount,
		ErrorMessage: "cancelled",
	}
}

func (e *Engine) runTask(ctx context.Context, task pipeline.ImageGenerationTask) pipeline.ImageGenerationResult {
	if ctx.Err() != nil {
		return cancelledResult(task)
	}

	key := cache.ImageTaskKey(task.Prompt, task.NegativePrompt, task.StyleParameters)
	if cached, ok := e.Cache.Get(key); ok {
		result, ok := cached.(pipeline.ImageGenerationResult)
		if ok {
			result.PanelID = task.PanelID
			result.CacheHit = true
			result.GenerationDurationMillis = 0
			return result
		}
	}

	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = pipeline.DefaultMaxImageRetries
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return cancelledResult(task)
		}

		start := time.Now()
		resp, err := e.Gateway.GenerateImage(ctx, modelgateway.ImageRequest{
			Prompt:          task.Prompt,
			NegativePrompt:  task.NegativePrompt,
			StyleParameters: task.StyleParameters,
		})
		duration := time.Since(start).Milliseconds()

		if err == nil {
			result := pipeline.ImageGenerationResult{
				PanelID:                  task.PanelID,
				Success:                  true,
				ImageURL:                 resp.ImageURL,
				ThumbnailURL:             resp.ThumbnailURL,
				QualityScore:             resp.Quality,
				GenerationDurationMillis: duration,
				RetryCount:               attempt,
				CacheHit:                 false,
			}
			e.Cache.Set(key, result)
			return result
		}

		if attempt >= maxRetries {
			return pipeline.ImageGenerationResult{
				PanelID:                  task.PanelID,
				Success:                  false,
				GenerationDurationMillis: duration,
				RetryCount:               attempt,
				ErrorMessage:             err.Error(),
			}
		}

		if sleepErr := e.sleep(ctx, backoffFor(attempt)); sleepErr != nil {
			if errors.Is(sleepErr, context.Canceled) || errors.Is(sleepErr, context.DeadlineExceeded) {
				return cancelledResult(task)
			}
			return pipeline.ImageGenerationResult{
				PanelID:      task.PanelID,
				Success:      false,
				RetryCount:   attempt,
				ErrorMessage: sleepErr.Error(),
			}
		}
	}
}

// backoffFor returns 2^attempt seconds, per spec §4.4 step 4.
func backoffFor(attempt int) time.Duration {
	return (1 << uint(attempt)) * time.Second
}
