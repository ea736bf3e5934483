// Package fanout implements the Parallel Fan-Out Engine that drives phase
// 5: bounded-concurrency image generation over the per-panel tasks phase 4's
// layout produces, with content-addressed dedup, per-task retry with
// exponential backoff, and order-preserving aggregation.
package fanout

import "github.com/inkwell-ai/storyforge/pkg/pipeline"

// PanelContext is the phase-4/phase-1 derived information the priority
// formula needs about one panel, independent of the task's retry state.
type PanelContext struct {
	PanelID            string
	IsFirstPage        bool
	IsFirstPanelOnPage bool
	EmotionalTone      string
	Size               string
	MaxCharacterProminence float64
}

// Priority computes a task's scheduling priority per the fixed formula:
// base 5; +2 first page; +1 first panel of its page; +2 emotional tone in
// {climax, tension}; +1 size in {large, splash}; +1 any character
// prominence > 0.8. Clamped to [1, 10].
func Priority(ctx PanelContext) int {
	p := 5
	if ctx.IsFirstPage {
		p += 2
	}
	if ctx.IsFirstPanelOnPage {
		p += 1
	}
	if ctx.EmotionalTone == "climax" || ctx.EmotionalTone == "tension" {
		p += 2
	}
	if ctx.Size == "large" || ctx.Size == "splash" {
		p += 1
	}
	if ctx.MaxCharacterProminence > 0.8 {
		p += 1
	}
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

// BuildTask constructs an ImageGenerationTask from a panel, its prompt
// material, and its computed priority. submissionIndex records the panel's
// position in the caller's order; Engine.Run replaces it with the task's
// position after its stable priority-descending sort.
func BuildTask(panelID, prompt, negativePrompt string, styleParameters map[string]any, priority, submissionIndex int) pipeline.ImageGenerationTask {
	return pipeline.ImageGenerationTask{
		PanelID:         panelID,
		Prompt:          prompt,
		NegativePrompt:  negativePrompt,
		StyleParameters: styleParameters,
		Priority:        priority,
		MaxRetries:      pipeline.DefaultMaxImageRetries,
		SubmissionIndex: submissionIndex,
	}
}
