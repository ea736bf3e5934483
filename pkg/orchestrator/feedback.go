package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

func newFeedbackRecordID() string {
	return uuid.NewString()
}

// criticalPhase reports whether phase always gates on HITL regardless of
// its quality score (spec glossary: "Critical phase").
func criticalPhase(phase int) bool {
	return phase == 4 || phase == 5
}

// gateOnHITL implements spec §4.1 step 2h: if the phase's quality score is
// below threshold (with HITL enabled), or the phase is critical and HITL
// is enabled, the session suspends in waiting_feedback until SubmitFeedback
// arrives. On rejection, the phase is re-run with feedback injected,
// looping until approved, retries exhausted, or cancellation.
func (d *Driver) gateOnHITL(ctx context.Context, session *pipeline.Session, ctrl *sessionControl, phase int, result *pipeline.PhaseResult, preview map[string]any, outputs map[int]pipeline.PhaseOutput) error {
	if !session.Params.EnableHITL {
		return nil
	}
	belowThreshold := result.QualityScore != nil && result.QualityScore.Overall < session.Params.QualityThreshold
	if !criticalPhase(phase) && !belowThreshold {
		return nil
	}

	for {
		session.SetStatus(pipeline.StatusWaitingFeedback)
		if err := d.Repos.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("persisting waiting_feedback: %w", err)
		}
		d.Events.FeedbackRequested(ctx, session.ID, phase, preview)

		select {
		case submission := <-ctrl.feedback:
			if submission.phase != phase {
				// Stale feedback for a different phase; ignore and keep waiting.
				continue
			}
			if err := d.recordFeedback(ctx, session.ID, phase, submission); err != nil {
				return err
			}
			if submission.approved {
				session.SetStatus(pipeline.StatusProcessing)
				return d.Repos.Sessions.Update(ctx, session)
			}

			if result.RetryCount >= pipeline.DefaultPerPhaseMaxRetries {
				return fmt.Errorf("%w: phase %d exhausted retries after feedback rejection", pipeline.ErrRetryExhausted, phase)
			}
			rerun, output, rerunPreview, err := d.runPhaseAttempt(ctx, session, phase, outputs, submission.payload)
			if err != nil {
				return err
			}
			result = rerun
			preview = rerunPreview
			outputs[phase] = output
			belowThreshold = result.QualityScore != nil && result.QualityScore.Overall < session.Params.QualityThreshold
			if !criticalPhase(phase) && !belowThreshold {
				session.SetStatus(pipeline.StatusProcessing)
				return d.Repos.Sessions.Update(ctx, session)
			}
			// still gated: loop, requesting feedback again on the re-run.
		case <-ctx.Done():
			return pipeline.ErrCancelled
		}
	}
}

func (d *Driver) recordFeedback(ctx context.Context, sessionID string, phase int, submission feedbackSubmission) error {
	record := &pipeline.FeedbackRecord{
		ID:          submission.payload["__recordID"].(string),
		SessionID:   sessionID,
		PhaseNumber: phase,
		Approved:    submission.approved,
		Payload:     submission.payload,
	}
	return d.Repos.Feedback.Create(ctx, record)
}

// SubmitFeedback delivers a caller's HITL decision to a running session
// waiting on phase. Valid only while the session is in-process and the
// driver is currently blocked in gateOnHITL for this phase.
func (d *Driver) SubmitFeedback(ctx context.Context, sessionID string, phase int, approved bool, payload map[string]any) error {
	ctrl, ok := d.controls.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s is not running in this process", pipeline.ErrInvalidTransition, sessionID)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["__recordID"]; !ok {
		payload["__recordID"] = newFeedbackRecordID()
	}
	submission := feedbackSubmission{phase: phase, approved: approved, payload: payload}
	select {
	case ctrl.feedback <- submission:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
