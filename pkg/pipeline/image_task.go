package pipeline

// ImageGenerationTask is a transient, phase-5-only unit of work describing
// one panel's image generation request.
type ImageGenerationTask struct {
	PanelID         string
	Prompt          string
	NegativePrompt  string
	StyleParameters map[string]any
	Priority        int // 1..10, clamped
	RetryCount      int
	MaxRetries      int
	SubmissionIndex int // stable tie-break on equal priority
}

// DefaultMaxImageRetries is ImageGenerationTask.MaxRetries's default (spec §3).
const DefaultMaxImageRetries = 3

// ImageGenerationResult is the outcome of running one ImageGenerationTask.
type ImageGenerationResult struct {
	PanelID                  string
	Success                  bool
	ImageURL                 string
	ThumbnailURL             string
	QualityScore             float64
	GenerationDurationMillis int64
	RetryCount               int
	ErrorMessage             string
	CacheHit                 bool
}
