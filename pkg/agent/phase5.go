package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/inkwell-ai/storyforge/pkg/fanout"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// Phase5Runner is the critical, parallel phase that does not fit the
// generic Executor contract: rather than one text-generation call, it
// derives an ImageGenerationTask per panel from phase 4's layout and drives
// them through the Parallel Fan-Out Engine (spec §4.4). The orchestrator
// special-cases phase 5 to call Run instead of Executor.Execute.
type Phase5Runner struct {
	Engine *fanout.Engine
}

// NewPhase5Runner constructs a Phase5Runner bound to engine.
func NewPhase5Runner(engine *fanout.Engine) *Phase5Runner {
	return &Phase5Runner{Engine: engine}
}

// Phase returns 5.
func (r *Phase5Runner) Phase() int { return 5 }

// ValidateInputs requires phases 1 through 4, with phase 4 exposing at
// least one page of panels.
func (r *Phase5Runner) ValidateInputs(input ExecutionInput) error {
	for _, dep := range []int{1, 2, 3, 4} {
		if _, err := requirePhase(5, dep, input.Previous); err != nil {
			return err
		}
	}
	p4 := input.Previous[4]
	pages, ok := getMapField(p4, "pages")
	if !ok || len(pages) == 0 {
		return fieldErr(5, "pages", "expected phase 4 to supply at least one page of panels")
	}
	return nil
}

type orderedPanel struct {
	pageNumber   int
	panelIndex   int
	panelID      string
	size         string
	styleParams  map[string]any
	prompt       string
	negative     string
}

// Run executes the fan-out engine over phase 4's panels and returns a
// phase-5 PhaseOutput shaped like every other phase's: a structured map
// with image descriptions keyed by panel id plus a "metrics" sub-map the
// quality assessor reads.
func (r *Phase5Runner) Run(ctx context.Context, input ExecutionInput) (ExecutionOutput, error) {
	if err := r.ValidateInputs(input); err != nil {
		return ExecutionOutput{}, err
	}

	panels := orderedPanelsFrom(input)
	characterNames := characterNamesFrom(input.Previous[1])
	anyProminent := anyCharacterProminent(input.Previous[1])
	styleGuide, _ := getMapField(input.Previous[2], "styleGuide")

	tasks := make([]pipeline.ImageGenerationTask, 0, len(panels))
	panelCharacters := make(map[string][]string, len(panels))
	for i, p := range panels {
		panelCtx := fanout.PanelContext{
			PanelID:                p.panelID,
			IsFirstPage:            p.pageNumber == panels[0].pageNumber,
			IsFirstPanelOnPage:     p.panelIndex == 0,
			EmotionalTone:          emotionalToneFor(input.Previous[3], p.pageNumber),
			Size:                   p.size,
			MaxCharacterProminence: 0,
		}
		if anyProminent {
			panelCtx.MaxCharacterProminence = 1
		}
		priority := fanout.Priority(panelCtx)
		tasks = append(tasks, fanout.BuildTask(p.panelID, p.prompt, p.negative, p.styleParams, priority, i))
		panelCharacters[p.panelID] = characterNames
	}

	if ctx.Err() != nil {
		return ExecutionOutput{}, pipeline.ErrCancelled
	}

	results := r.Engine.Run(ctx, tasks)
	styleConsistency := 0.5
	if len(styleGuide) > 0 {
		styleConsistency = 1.0
	}
	report := fanout.Aggregate(results, panelCharacters, styleConsistency, r.Engine.MaxParallel)

	images := make(map[string]any, len(results))
	for _, res := range results {
		images[res.PanelID] = map[string]any{
			"imageUrl":      res.ImageURL,
			"thumbnailUrl":  res.ThumbnailURL,
			"success":       res.Success,
			"qualityScore":  res.QualityScore,
			"retryCount":    res.RetryCount,
			"errorMessage":  res.ErrorMessage,
			"cacheHit":      res.CacheHit,
		}
	}

	structured := map[string]any{
		"images": images,
		"metrics": map[string]any{
			"imageSuccessRate":      report.ImageSuccessRate,
			"avgImageQuality":       report.AverageImageQuality,
			"characterConsistency":  report.OverallConsistency,
			"coherence":             report.OverallConsistency,
			"parallelEfficiency":    report.ParallelEfficiency,
			"cacheHitRate":          report.CacheHitRate,
		},
	}

	if err := validatePhase5Output(structured); err != nil {
		return ExecutionOutput{}, fmt.Errorf("%w: %v", pipeline.ErrFallbackInvalid, err)
	}

	return ExecutionOutput{
		Output:     pipeline.PhaseOutput(structured),
		Preview:    map[string]any{"panelCount": len(panels), "successRate": report.ImageSuccessRate},
		AIAssisted: true,
	}, nil
}

func validatePhase5Output(structured map[string]any) error {
	images, ok := getMapField(structured, "images")
	if !ok || len(images) == 0 {
		return fieldErr(5, "images", "expected at least one image result")
	}
	return nil
}

// orderedPanelsFrom flattens phase 4's pages map into layout order (pages
// ascending by their numeric suffix, panels in each page's declared array
// order), deriving a prompt and style parameters for each panel from the
// phases it was produced alongside.
func orderedPanelsFrom(input ExecutionInput) []orderedPanel {
	p4 := input.Previous[4]
	pages, _ := getMapField(p4, "pages")
	styleGuide, _ := getMapField(input.Previous[2], "styleGuide")

	pageKeys := make([]string, 0, len(pages))
	for key := range pages {
		pageKeys = append(pageKeys, key)
	}
	sort.Slice(pageKeys, func(i, j int) bool {
		return pageNumberOf(pageKeys[i]) < pageNumberOf(pageKeys[j])
	})

	var ordered []orderedPanel
	for _, key := range pageKeys {
		page, ok := pages[key].(map[string]any)
		if !ok {
			continue
		}
		panels, _ := getSlice(page, "panels")
		for idx, raw := range panels {
			panel, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, _ := getString(panel, "panelId")
			size, _ := getString(panel, "size")
			composition, _ := getString(panel, "composition")
			cameraAngle, _ := getString(panel, "cameraAngle")
			ordered = append(ordered, orderedPanel{
				pageNumber:  pageNumberOf(key),
				panelIndex:  idx,
				panelID:     id,
				size:        size,
				styleParams: mergeStyleParams(styleGuide, cameraAngle, composition),
				prompt:      panelPrompt(cameraAngle, composition),
				negative:    "blurry, distorted anatomy, inconsistent style, extra limbs",
			})
		}
	}
	return ordered
}

func panelPrompt(cameraAngle, composition string) string {
	var b strings.Builder
	b.WriteString("comic panel, ")
	b.WriteString(cameraAngle)
	b.WriteString(" shot, ")
	b.WriteString(composition)
	b.WriteString(" composition")
	return b.String()
}

func mergeStyleParams(styleGuide map[string]any, cameraAngle, composition string) map[string]any {
	params := make(map[string]any, len(styleGuide)+2)
	for k, v := range styleGuide {
		params[k] = v
	}
	params["cameraAngle"] = cameraAngle
	params["composition"] = composition
	return params
}

func pageNumberOf(key string) int {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 {
		return 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return n
}

// emotionalToneFor approximates a page's dominant emotional tone from
// phase 3's scenes, matching the i-th scene to the (i+1)-th page: scenes
// with emotionalIntensity carried over from phase 1 above 7 read as
// "climax", above 5 as "tension", otherwise neutral.
func emotionalToneFor(p3Output pipeline.PhaseOutput, pageNumber int) string {
	scenes, _ := getSlice(p3Output, "scenes")
	index := pageNumber - 1
	if index < 0 || index >= len(scenes) {
		return "neutral"
	}
	scene, ok := scenes[index].(map[string]any)
	if !ok {
		return "neutral"
	}
	intensity, ok := asFloat(scene["emotionalIntensity"])
	if !ok {
		return "neutral"
	}
	switch {
	case intensity > 7:
		return "climax"
	case intensity > 5:
		return "tension"
	default:
		return "neutral"
	}
}

func anyCharacterProminent(p1Output pipeline.PhaseOutput) bool {
	chars, ok := getSlice(p1Output, "characters")
	if !ok {
		return false
	}
	for _, raw := range chars {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if prominence, ok := asFloat(c["prominence"]); ok && prominence > 0.8 {
			return true
		}
	}
	return false
}
