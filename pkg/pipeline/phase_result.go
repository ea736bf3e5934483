package pipeline

import "time"

// PhaseResultStatus is the lifecycle state of a single phase's execution.
type PhaseResultStatus string

const (
	PhaseResultPending   PhaseResultStatus = "pending"
	PhaseResultRunning   PhaseResultStatus = "running"
	PhaseResultCompleted PhaseResultStatus = "completed"
	PhaseResultFailed    PhaseResultStatus = "failed"
)

// DefaultPerPhaseMaxRetries bounds PhaseResult.RetryCount (spec §3).
const DefaultPerPhaseMaxRetries = 3

// PhaseOutput is the opaque, validated structured object an agent produces.
// The orchestrator never inspects its contents beyond what the dependency
// matrix requires (§4.2); individual agents own their own concrete shapes
// underneath this map-like carrier.
type PhaseOutput map[string]any

// PhaseResult records one phase's execution for one session. At most one
// PhaseResult per (SessionID, PhaseNumber) may be in a non-failed state at
// any time (spec §3 invariant) — enforced by the orchestrator's driver,
// which owns the only writer for a given session.
type PhaseResult struct {
	ID                       string
	SessionID                string
	PhaseNumber              int
	Status                   PhaseResultStatus
	Output                   PhaseOutput
	QualityScore             *QualityScore
	ProcessingDurationMillis int64
	RetryCount               int
	ErrorMessage             string
	StartedAt                *time.Time
	CompletedAt              *time.Time
	AIAssisted               bool
}

// NewPhaseResult creates a pending PhaseResult for the given phase.
func NewPhaseResult(id, sessionID string, phaseNumber int) *PhaseResult {
	return &PhaseResult{
		ID:          id,
		SessionID:   sessionID,
		PhaseNumber: phaseNumber,
		Status:      PhaseResultPending,
	}
}

// Begin marks the phase as running.
func (r *PhaseResult) Begin() {
	now := time.Now().UTC()
	r.Status = PhaseResultRunning
	r.StartedAt = &now
}

// Succeed finalizes a successful phase execution.
func (r *PhaseResult) Succeed(output PhaseOutput, score *QualityScore, durationMillis int64, aiAssisted bool) {
	now := time.Now().UTC()
	r.Status = PhaseResultCompleted
	r.Output = output
	r.QualityScore = score
	r.ProcessingDurationMillis = durationMillis
	r.AIAssisted = aiAssisted
	r.CompletedAt = &now
}

// FailWith finalizes a failed phase execution with a descriptive error.
func (r *PhaseResult) FailWith(errMsg string) {
	now := time.Now().UTC()
	r.Status = PhaseResultFailed
	r.ErrorMessage = errMsg
	r.CompletedAt = &now
}

// ContentType enumerates the kinds of GeneratedContent a phase can emit.
type ContentType string

const (
	ContentTypeText      ContentType = "text"
	ContentTypeImage     ContentType = "image"
	ContentTypeDialogue  ContentType = "dialogue"
	ContentTypeLayout    ContentType = "layout"
	ContentTypeComposite ContentType = "composite"
)

// GeneratedContentStatus is the review/approval lifecycle of a content row.
type GeneratedContentStatus string

const (
	ContentStatusDraft     GeneratedContentStatus = "draft"
	ContentStatusGenerated GeneratedContentStatus = "generated"
	ContentStatusReviewed  GeneratedContentStatus = "reviewed"
	ContentStatusApproved  GeneratedContentStatus = "approved"
	ContentStatusRejected  GeneratedContentStatus = "rejected"
	ContentStatusFinalized GeneratedContentStatus = "finalized"
	ContentStatusArchived  GeneratedContentStatus = "archived"
)

// GeneratedContent is one deduplicated artifact produced during a phase.
// Deduplication key is (SessionID, PhaseNumber, ContentType, ContentHash) —
// repositories must return the existing row on a collision rather than
// inserting a duplicate (spec §3 invariant).
type GeneratedContent struct {
	ID           string
	SessionID    string
	PhaseNumber  int
	ContentType  ContentType
	ContentHash  string
	Data         any
	Status       GeneratedContentStatus
	QualityScore *float64
	GeneratedBy  string // "model" or "fallback"; the model identifier itself is not recorded
	CreatedAt    time.Time
}

// PreviewVersion is one GeneratePreview output captured for a PhaseResult,
// versioned so HITL reviewers can see the history of previews shown to them.
type PreviewVersion struct {
	ID          string
	SessionID   string
	PhaseNumber int
	Version     int
	Summary     map[string]any
	CreatedAt   time.Time
}

// FeedbackRecord is one SubmitFeedback call, persisted for audit and for
// deterministic replay of ApplyFeedback.
type FeedbackRecord struct {
	ID          string
	SessionID   string
	PhaseNumber int
	Approved    bool
	Payload     map[string]any
	CreatedAt   time.Time
}
