// Package orchestrator drives a Session through phases 1..7, honoring
// dependencies, timeouts, retries, quality gates, human-in-the-loop
// feedback, and cancellation, grounded on the teacher's Worker.pollAndProcess
// single-session driver loop (pkg/queue/worker.go) generalized from one
// flat investigation run to seven sequential, individually-retried phases.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/storyforge/pkg/agent"
	"github.com/inkwell-ai/storyforge/pkg/cache"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/quality"
	"github.com/inkwell-ai/storyforge/pkg/repository"
)

// EventSink is the minimal set of event emissions the driver needs (spec
// §6). Defined here rather than imported from pkg/events so orchestrator
// depends only on the interface it uses; pkg/events.Service satisfies it
// structurally.
type EventSink interface {
	PhaseStarted(ctx context.Context, sessionID string, phase int)
	PhaseCompleted(ctx context.Context, sessionID string, phase int, score pipeline.QualityScore)
	PhaseFailed(ctx context.Context, sessionID string, phase int, errMsg string)
	FeedbackRequested(ctx context.Context, sessionID string, phase int, preview map[string]any)
	SessionCompleted(ctx context.Context, sessionID string)
	SessionFailed(ctx context.Context, sessionID string, errMsg string)
	SessionCancelled(ctx context.Context, sessionID string)
}

// noopEventSink discards every emission, the default when the caller wires
// no event sink (e.g. unit tests).
type noopEventSink struct{}

func (noopEventSink) PhaseStarted(context.Context, string, int)                           {}
func (noopEventSink) PhaseCompleted(context.Context, string, int, pipeline.QualityScore)  {}
func (noopEventSink) PhaseFailed(context.Context, string, int, string)                    {}
func (noopEventSink) FeedbackRequested(context.Context, string, int, map[string]any)      {}
func (noopEventSink) SessionCompleted(context.Context, string)                           {}
func (noopEventSink) SessionFailed(context.Context, string, string)                       {}
func (noopEventSink) SessionCancelled(context.Context, string)                            {}

// retryBaseDelay is the base for the per-phase exponential backoff
// base·2^attempt, base = 1s for agent retries (spec §4.1).
const retryBaseDelay = 1 * time.Second

// checkpointTTL is the default cache TTL for interim phase checkpoints
// (spec §6: key agent_result:{phase}:{sessionId}, default TTL 3600s).
const checkpointTTL = 1 * time.Hour

// Repositories groups every aggregate's repository the driver persists to.
type Repositories struct {
	Sessions      repository.SessionRepository
	PhaseResults  repository.PhaseResultRepository
	Content       repository.ContentRepository
	Previews      repository.PreviewRepository
	Feedback      repository.FeedbackRepository
}

// Driver drives sessions through the seven-phase pipeline.
type Driver struct {
	Repos    Repositories
	Cache    *cache.Store
	Executor *agent.Executor
	Agents   map[int]agent.PhaseAgent
	Phase5   *agent.Phase5Runner
	Events   EventSink

	controls *controlRegistry
}

// NewDriver constructs a Driver. agents must supply PhaseAgent
// implementations for phases 1,2,3,4,6,7; phase 5 is driven separately
// through phase5Runner.
func NewDriver(repos Repositories, store *cache.Store, executor *agent.Executor, agents map[int]agent.PhaseAgent, phase5Runner *agent.Phase5Runner, events EventSink) *Driver {
	if events == nil {
		events = noopEventSink{}
	}
	return &Driver{
		Repos:    repos,
		Cache:    store,
		Executor: executor,
		Agents:   agents,
		Phase5:   phase5Runner,
		Events:   events,
		controls: newControlRegistry(),
	}
}

// Run drives session to a terminal status. Blocking; callers that want
// concurrent sessions invoke Run from their own goroutine (the Session
// Supervisor does this).
func (d *Driver) Run(ctx context.Context, session *pipeline.Session) error {
	ctrl := d.controls.register(session.ID)
	defer d.controls.unregister(session.ID)

	runCtx, cancel := context.WithCancel(ctx)
	ctrl.cancel = cancel
	defer cancel()

	startPhase := session.CurrentPhase
	if startPhase < 1 {
		session.Start()
		startPhase = 1
	} else {
		session.SetStatus(pipeline.StatusProcessing)
	}
	if err := d.Repos.Sessions.Update(runCtx, session); err != nil {
		return fmt.Errorf("persisting session start: %w", err)
	}

	outputs, err := d.rehydrateOutputs(runCtx, session.ID, startPhase)
	if err != nil {
		return fmt.Errorf("rehydrating prior phase outputs: %w", err)
	}

	for phase := startPhase; phase <= 7; phase++ {
		if err := d.awaitUnpaused(runCtx, session, ctrl); err != nil {
			return d.terminateCancelled(runCtx, session, err)
		}

		session.AdvancePhase(phase)
		if err := d.Repos.Sessions.Update(runCtx, session); err != nil {
			return fmt.Errorf("persisting phase advance: %w", err)
		}

		result, output, preview, err := d.runPhaseWithRetry(runCtx, session, phase, outputs)
		if err != nil {
			if errors.Is(err, pipeline.ErrCancelled) {
				return d.terminateCancelled(runCtx, session, err)
			}
			d.failSession(runCtx, session, phase, err)
			return err
		}

		if result.QualityScore != nil {
			d.Events.PhaseCompleted(runCtx, session.ID, phase, *result.QualityScore)
		}
		outputs[phase] = output

		if err := d.gateOnHITL(runCtx, session, ctrl, phase, result, preview, outputs); err != nil {
			if errors.Is(err, pipeline.ErrCancelled) {
				return d.terminateCancelled(runCtx, session, err)
			}
			d.failSession(runCtx, session, phase, err)
			return err
		}
		outputs[phase] = result.Output
	}

	session.Complete()
	if err := d.Repos.Sessions.Update(runCtx, session); err != nil {
		return fmt.Errorf("persisting session completion: %w", err)
	}
	d.Events.SessionCompleted(runCtx, session.ID)
	return nil
}

// rehydrateOutputs reloads completed PhaseResult outputs for phases before
// startPhase, the resumability path for Resume/Retry.
func (d *Driver) rehydrateOutputs(ctx context.Context, sessionID string, startPhase int) (map[int]pipeline.PhaseOutput, error) {
	outputs := make(map[int]pipeline.PhaseOutput, 7)
	for phase := 1; phase < startPhase; phase++ {
		result, err := d.Repos.PhaseResults.Get(ctx, sessionID, phase)
		if err != nil {
			if errors.Is(err, pipeline.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if result.Status == pipeline.PhaseResultCompleted {
			outputs[phase] = result.Output
		}
	}
	return outputs, nil
}

// runPhaseWithRetry executes phase, retrying ErrBackendTransient failures
// with exponential backoff up to pipeline.DefaultPerPhaseMaxRetries (spec
// §4.1 step 2e).
func (d *Driver) runPhaseWithRetry(ctx context.Context, session *pipeline.Session, phase int, outputs map[int]pipeline.PhaseOutput) (*pipeline.PhaseResult, pipeline.PhaseOutput, map[string]any, error) {
	return d.runPhaseAttempt(ctx, session, phase, outputs, nil)
}

// runPhaseAttempt runs (or re-runs, with feedback injected) one phase to
// completion or failure, retrying ErrBackendTransient failures with
// exponential backoff up to pipeline.DefaultPerPhaseMaxRetries (spec §4.1
// step 2e). feedback is non-nil only on a HITL-rejection re-run.
func (d *Driver) runPhaseAttempt(ctx context.Context, session *pipeline.Session, phase int, outputs map[int]pipeline.PhaseOutput, feedback map[string]any) (*pipeline.PhaseResult, pipeline.PhaseOutput, map[string]any, error) {
	result := pipeline.NewPhaseResult(uuid.NewString(), session.ID, phase)
	result.Begin()
	if err := d.Repos.PhaseResults.Upsert(ctx, result); err != nil {
		return nil, nil, nil, fmt.Errorf("persisting phase start: %w", err)
	}
	d.Events.PhaseStarted(ctx, session.ID, phase)

	for attempt := 0; ; attempt++ {
		phaseCtx, cancel := context.WithTimeout(ctx, session.Params.TimeoutFor(phase))
		start := time.Now()
		output, preview, execErr := d.executePhase(phaseCtx, phase, session, outputs, feedback)
		duration := time.Since(start).Milliseconds()
		cancel()

		if execErr == nil {
			score := quality.Assess(phase, output, outputs)
			result.Succeed(output, &score, duration, feedback == nil && !isFallbackOutput(output))
			if err := d.Repos.PhaseResults.Upsert(ctx, result); err != nil {
				return nil, nil, nil, fmt.Errorf("persisting phase result: %w", err)
			}
			if err := d.checkpoint(session.ID, phase, output); err != nil {
				slog.Warn("checkpointing phase result failed", "session_id", session.ID, "phase", phase, "error", err)
			}
			d.persistContent(ctx, session.ID, phase, output)
			d.persistPreview(ctx, session.ID, phase, preview)
			return result, output, preview, nil
		}

		if ctx.Err() != nil || errors.Is(execErr, pipeline.ErrCancelled) {
			result.FailWith("cancelled")
			_ = d.Repos.PhaseResults.Upsert(ctx, result)
			return nil, nil, nil, pipeline.ErrCancelled
		}

		if !errors.Is(execErr, pipeline.ErrBackendTransient) {
			result.FailWith(execErr.Error())
			_ = d.Repos.PhaseResults.Upsert(ctx, result)
			d.Events.PhaseFailed(ctx, session.ID, phase, execErr.Error())
			return nil, nil, nil, execErr
		}

		if attempt >= pipeline.DefaultPerPhaseMaxRetries {
			finalErr := fmt.Errorf("%w: phase %d exhausted retries: %v", pipeline.ErrRetryExhausted, phase, execErr)
			result.FailWith(finalErr.Error())
			_ = d.Repos.PhaseResults.Upsert(ctx, result)
			d.Events.PhaseFailed(ctx, session.ID, phase, finalErr.Error())
			return nil, nil, nil, finalErr
		}

		result.RetryCount++
		_ = d.Repos.PhaseResults.Upsert(ctx, result)
		if sleepErr := sleepRespectingContext(ctx, retryBaseDelay<<attempt); sleepErr != nil {
			result.FailWith("cancelled")
			_ = d.Repos.PhaseResults.Upsert(ctx, result)
			return nil, nil, nil, pipeline.ErrCancelled
		}
	}
}

func (d *Driver) persistPreview(ctx context.Context, sessionID string, phase int, preview map[string]any) {
	p := &pipeline.PreviewVersion{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		PhaseNumber: phase,
		Version:     1,
		Summary:     preview,
		CreatedAt:   time.Now().UTC(),
	}
	if existing, err := d.Repos.Previews.ListBySession(ctx, sessionID); err == nil {
		for _, e := range existing {
			if e.PhaseNumber == phase && e.Version >= p.Version {
				p.Version = e.Version + 1
			}
		}
	}
	if err := d.Repos.Previews.Create(ctx, p); err != nil {
		slog.Warn("persisting preview failed", "session_id", sessionID, "phase", phase, "error", err)
	}
}

func isFallbackOutput(output pipeline.PhaseOutput) bool {
	_, ok := output["__fallback"]
	return ok
}

func (d *Driver) executePhase(ctx context.Context, phase int, session *pipeline.Session, outputs map[int]pipeline.PhaseOutput, feedback map[string]any) (pipeline.PhaseOutput, map[string]any, error) {
	input := agent.ExecutionInput{
		InputText: session.InputText,
		Previous:  outputs,
		Params:    session.Params,
		Feedback:  feedback,
	}

	if phase == 5 {
		out, err := d.Phase5.Run(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		return out.Output, out.Preview, nil
	}

	pa, ok := d.Agents[phase]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no agent registered for phase %d", pipeline.ErrInternalInvariant, phase)
	}
	out, err := d.Executor.Execute(ctx, pa, input)
	if err != nil {
		return nil, nil, err
	}
	if !out.AIAssisted {
		out.Output["__fallback"] = true
	}
	return out.Output, out.Preview, nil
}

func sleepRespectingContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) checkpoint(sessionID string, phase int, output pipeline.PhaseOutput) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return err
	}
	d.Cache.SetWithTTL(checkpointKey(phase, sessionID), payload, checkpointTTL)
	return nil
}

func checkpointKey(phase int, sessionID string) string {
	return fmt.Sprintf("agent_result:%d:%s", phase, sessionID)
}

func (d *Driver) persistContent(ctx context.Context, sessionID string, phase int, output pipeline.PhaseOutput) {
	canonical, err := json.Marshal(output)
	if err != nil {
		return
	}
	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:])
	content := &pipeline.GeneratedContent{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		PhaseNumber: phase,
		ContentType: contentTypeForPhase(phase),
		ContentHash: hash,
		Data:        map[string]any(output),
		Status:      pipeline.ContentStatusGenerated,
		GeneratedBy: generatedByFor(output),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := d.Repos.Content.Create(ctx, content); err != nil {
		slog.Warn("persisting generated content failed", "session_id", sessionID, "phase", phase, "error", err)
	}
}

func generatedByFor(output pipeline.PhaseOutput) string {
	if isFallbackOutput(output) {
		return "fallback"
	}
	return "model"
}

func contentTypeForPhase(phase int) pipeline.ContentType {
	switch phase {
	case 4:
		return pipeline.ContentTypeLayout
	case 5:
		return pipeline.ContentTypeImage
	case 6:
		return pipeline.ContentTypeDialogue
	case 7:
		return pipeline.ContentTypeComposite
	default:
		return pipeline.ContentTypeText
	}
}

func (d *Driver) terminateCancelled(ctx context.Context, session *pipeline.Session, cause error) error {
	session.Cancel(cancelReasonFor(cause))
	_ = d.Repos.Sessions.Update(ctx, session)
	d.Events.SessionCancelled(ctx, session.ID)
	return pipeline.ErrCancelled
}

func cancelReasonFor(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func (d *Driver) failSession(ctx context.Context, session *pipeline.Session, phase int, err error) {
	session.Fail(fmt.Sprintf("phase %d: %v", phase, err))
	_ = d.Repos.Sessions.Update(ctx, session)
	d.Events.SessionFailed(ctx, session.ID, session.ErrorMessage)
}
