package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy of spec §7. Agents and the
// orchestrator dispatch on these with errors.Is/errors.As rather than string
// matching.
var (
	// ErrInputValidation: input data or prior-phase dependency missing or
	// mistyped. Never retried; surfaced as session failure.
	ErrInputValidation = errors.New("input validation failed")

	// ErrBackendTransient: model gateway timeout, empty response, 5xx, or
	// rate limit. Retried with exponential backoff; on exhaustion the agent
	// falls back to its deterministic generator.
	ErrBackendTransient = errors.New("model backend transient failure")

	// ErrParseSchema: model response not parseable or missing required
	// fields. Triggers fallback; never retried at the orchestrator level.
	ErrParseSchema = errors.New("model response failed schema parse")

	// ErrFallbackInvalid: the fallback output also failed validation. Fatal
	// for the phase; the orchestrator fails the session.
	ErrFallbackInvalid = errors.New("fallback output failed validation")

	// ErrCancelled: cancellation observed at a suspension point. Not a
	// failure; the session terminates as cancelled.
	ErrCancelled = errors.New("operation cancelled")

	// ErrRetryExhausted: a retriable failure recurred beyond the configured
	// limit. Fatal for the phase.
	ErrRetryExhausted = errors.New("retry limit exhausted")

	// ErrInternalInvariant: orchestrator state inconsistency that should not
	// occur. Logged as critical; the session fails.
	ErrInternalInvariant = errors.New("internal invariant violated")

	// ErrNotFound is returned by repositories when an aggregate id is
	// unknown.
	ErrNotFound = errors.New("not found")

	// ErrNotCancellable is returned when Cancel/Pause/Resume/Retry is called
	// on a session whose status does not permit the requested transition.
	ErrNotCancellable = errors.New("session is not in a cancellable state")

	// ErrInvalidTransition is returned when a caller requests a session
	// state transition that is not legal from the session's current status.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// ValidationError wraps a dependency or schema validation failure with
// enough context to build a descriptive session error message, mirroring
// the teacher's config.ValidationError shape.
type ValidationError struct {
	Phase int    // phase number the violation was detected in
	Field string // field name, if applicable
	Err   error  // underlying sentinel (usually ErrInputValidation)
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("phase %d: field %q: %v", e.Phase, e.Field, e.Err)
	}
	return fmt.Sprintf("phase %d: %v", e.Phase, e.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError rooted in ErrInputValidation.
func NewValidationError(phase int, field, reason string) *ValidationError {
	return &ValidationError{
		Phase: phase,
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrInputValidation, reason),
	}
}
