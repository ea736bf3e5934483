package agent

import (
	"sort"
	"strconv"
	"strings"
)

// cameraAngles is the fixed enum phase 4 panels must draw cameraAngle from.
var cameraAngles = []string{"wide", "medium", "close-up", "extreme-close-up", "birds-eye", "low-angle", "dutch-angle"}

// panelSizes is the fixed enum phase 4 panels must draw size from.
var panelSizes = []string{"small", "medium", "large", "splash"}

// Phase4Agent is the critical phase producing per-page panel layouts:
// normalized bounding boxes, a size tag, a camera angle, a composition
// rule, and a deterministic reading order over panel ids.
type Phase4Agent struct{}

// NewPhase4Agent constructs a Phase4Agent.
func NewPhase4Agent() *Phase4Agent { return &Phase4Agent{} }

// Phase returns 4.
func (a *Phase4Agent) Phase() int { return 4 }

// ValidateInputs requires phase 3's scenes and pageAllocation (phase 1/2
// are available via input.Previous but not directly required by the
// dependency matrix row for phase 4).
func (a *Phase4Agent) ValidateInputs(input ExecutionInput) error {
	p3, err := requirePhase(4, 3, input.Previous)
	if err != nil {
		return err
	}
	if err := requireScenesCanonical(4, p3); err != nil {
		return err
	}
	if _, ok := p3["pageAllocation"]; !ok {
		return fieldErr(4, "pageAllocation", "phase 3 output missing \"pageAllocation\"")
	}
	return requireSliceField(4, p3, "scenes")
}

func (a *Phase4Agent) BuildPrompt(input ExecutionInput) string {
	var b strings.Builder
	b.WriteString("You are a comic page layout artist. For each page, lay out an ordered list ")
	b.WriteString("of panels. Each panel needs a panelId, a normalized bounding box (x, y, width, ")
	b.WriteString("height, each in [0,1]), a size tag (small|medium|large|splash), a cameraAngle ")
	b.WriteString("(wide|medium|close-up|extreme-close-up|birds-eye|low-angle|dutch-angle), and a ")
	b.WriteString("composition rule. Respond with a ```json fenced object with keys pages (map ")
	b.WriteString("page -> {panels: [...] }), metrics.\n")
	return b.String()
}

func (a *Phase4Agent) PostCheck(structured map[string]any) bool {
	if structured == nil {
		return false
	}
	pages, ok := getMapField(structured, "pages")
	if !ok || len(pages) == 0 {
		return false
	}
	for _, raw := range pages {
		page, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		panels, ok := getSlice(page, "panels")
		if !ok || len(panels) == 0 {
			return false
		}
	}
	return true
}

func (a *Phase4Agent) Fallback(input ExecutionInput) map[string]any {
	scenes, _ := getSlice(input.Previous[3], "scenes")
	pages := make(map[string]any, len(scenes))
	for i, raw := range scenes {
		scene, _ := raw.(map[string]any)
		id, _ := getString(scene, "id")
		if id == "" {
			id = "scene-fallback"
		}
		pageKey := "page-" + strconv.Itoa(i+1)
		pages[pageKey] = map[string]any{
			"panels": fallbackPanelsFor(id),
		}
	}
	if len(pages) == 0 {
		pages["page-1"] = map[string]any{"panels": fallbackPanelsFor("scene-1")}
	}
	pages = attachReadingOrder(pages)
	return map[string]any{
		"pages": pages,
		"metrics": map[string]any{
			"layoutQuality": 0.5, "compositionQuality": 0.5, "readingFlow": 0.5,
			"cameraVariety": 0.4, "visualHierarchy": 0.5, "pageComposition": 0.5,
		},
	}
}

func fallbackPanelsFor(sceneID string) []any {
	return []any{
		map[string]any{
			"panelId": sceneID + "-p1", "x": 0.0, "y": 0.0, "width": 1.0, "height": 0.5,
			"size": "medium", "cameraAngle": "wide", "composition": "rule-of-thirds",
		},
		map[string]any{
			"panelId": sceneID + "-p2", "x": 0.0, "y": 0.5, "width": 1.0, "height": 0.5,
			"size": "medium", "cameraAngle": "close-up", "composition": "centered",
		},
	}
}

func (a *Phase4Agent) CompleteWithDefaults(structured map[string]any) map[string]any {
	if _, ok := structured["metrics"]; !ok {
		structured["metrics"] = map[string]any{}
	}
	if pages, ok := getMapField(structured, "pages"); ok {
		structured["pages"] = attachReadingOrder(pages)
	}
	return structured
}

// attachReadingOrder computes, for every page, the deterministic
// readingOrder over panel ids: a stable sort by (position.y ascending,
// position.x descending), the manga top-to-bottom/right-to-left
// convention mandated by spec §8's testable property.
func attachReadingOrder(pages map[string]any) map[string]any {
	out := make(map[string]any, len(pages))
	for key, raw := range pages {
		page, ok := raw.(map[string]any)
		if !ok {
			out[key] = raw
			continue
		}
		panels, _ := getSlice(page, "panels")
		order := readingOrderFor(panels)
		page["readingOrder"] = order
		out[key] = page
	}
	return out
}

type panelPosition struct {
	id    string
	x, y  float64
	index int
}

// readingOrderFor returns panel ids sorted by (y asc, x desc), stable on
// ties by original index.
func readingOrderFor(panels []any) []any {
	positions := make([]panelPosition, 0, len(panels))
	for i, raw := range panels {
		panel, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := getString(panel, "panelId")
		x, _ := asFloat(panel["x"])
		y, _ := asFloat(panel["y"])
		positions = append(positions, panelPosition{id: id, x: x, y: y, index: i})
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].y != positions[j].y {
			return positions[i].y < positions[j].y
		}
		return positions[i].x > positions[j].x
	})
	order := make([]any, 0, len(positions))
	for _, p := range positions {
		order = append(order, p.id)
	}
	return order
}

func (a *Phase4Agent) ValidateOutput(structured map[string]any) error {
	pages, ok := getMapField(structured, "pages")
	if !ok || len(pages) == 0 {
		return fieldErr(4, "pages", "expected at least one page of panels")
	}
	for key, raw := range pages {
		page, ok := raw.(map[string]any)
		if !ok {
			return fieldErr(4, "pages["+key+"]", "expected object")
		}
		panels, ok := getSlice(page, "panels")
		if !ok || len(panels) == 0 {
			return fieldErr(4, "pages["+key+"].panels", "expected at least one panel")
		}
		for _, raw := range panels {
			panel, ok := raw.(map[string]any)
			if !ok {
				return fieldErr(4, "pages["+key+"].panels[]", "expected object")
			}
			if err := validatePanelGeometry(key, panel); err != nil {
				return err
			}
			if err := validatePanelEnum(key, panel, "size", panelSizes); err != nil {
				return err
			}
			if err := validatePanelEnum(key, panel, "cameraAngle", cameraAngles); err != nil {
				return err
			}
		}
		if _, ok := getSlice(page, "readingOrder"); !ok {
			return fieldErr(4, "pages["+key+"].readingOrder", "expected a computed reading order")
		}
	}
	return nil
}

func validatePanelGeometry(pageKey string, panel map[string]any) error {
	for _, field := range []string{"x", "y", "width", "height"} {
		v, ok := asFloat(panel[field])
		if !ok || v < 0 || v > 1 {
			return fieldErr(4, "pages["+pageKey+"].panels[]."+field, "expected a value in [0,1]")
		}
	}
	return nil
}

func validatePanelEnum(pageKey string, panel map[string]any, field string, allowed []string) error {
	value, _ := getString(panel, field)
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fieldErr(4, "pages["+pageKey+"].panels[]."+field, "expected one of "+strings.Join(allowed, "|"))
}

func (a *Phase4Agent) GeneratePreview(structured map[string]any) map[string]any {
	pages, _ := getMapField(structured, "pages")
	panelCount := 0
	for _, raw := range pages {
		page, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		panels, _ := getSlice(page, "panels")
		panelCount += len(panels)
	}
	return map[string]any{"pageCount": len(pages), "panelCount": panelCount}
}
