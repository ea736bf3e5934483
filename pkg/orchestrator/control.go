package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// sessionControl is the live, in-process control surface for one running
// session: its cancel func, a pause flag the driver checks only between
// phases (spec §4.1: "the in-flight phase is allowed to complete or time
// out"), a resume signal, and a feedback mailbox. Grounded on the teacher's
// WorkerPool.activeSessions cancel-function registry (pkg/queue/pool.go),
// extended with the pause/resume/feedback signals this domain's state
// machine additionally needs.
type sessionControl struct {
	cancel  context.CancelFunc
	paused  atomic.Bool
	resume  chan struct{}
	feedback chan feedbackSubmission
}

type feedbackSubmission struct {
	phase    int
	approved bool
	payload  map[string]any
}

type controlRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionControl
}

func newControlRegistry() *controlRegistry {
	return &controlRegistry{sessions: make(map[string]*sessionControl)}
}

func (r *controlRegistry) register(sessionID string) *sessionControl {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl := &sessionControl{
		resume:   make(chan struct{}, 1),
		feedback: make(chan feedbackSubmission, 1),
	}
	r.sessions[sessionID] = ctrl
	return ctrl
}

func (r *controlRegistry) unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *controlRegistry) get(sessionID string) (*sessionControl, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.sessions[sessionID]
	return ctrl, ok
}

// awaitUnpaused blocks while ctrl.paused is set, between phase boundaries
// only — never mid-phase — resuming when Resume is called or returning
// pipeline.ErrCancelled if Cancel fires while paused.
func (d *Driver) awaitUnpaused(ctx context.Context, session *pipeline.Session, ctrl *sessionControl) error {
	if !ctrl.paused.Load() {
		return nil
	}
	session.Pause()
	_ = d.Repos.Sessions.Update(ctx, session)

	select {
	case <-ctrl.resume:
		ctrl.paused.Store(false)
		if err := session.Resume(); err != nil {
			return err
		}
		return d.Repos.Sessions.Update(ctx, session)
	case <-ctx.Done():
		return pipeline.ErrCancelled
	}
}

// Pause requests that sessionID suspend at its next phase boundary. Valid
// only while the session is processing or waiting_feedback in-process.
func (d *Driver) Pause(sessionID string) error {
	ctrl, ok := d.controls.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s is not running in this process", pipeline.ErrInvalidTransition, sessionID)
	}
	ctrl.paused.Store(true)
	return nil
}

// Resume signals a paused session to continue.
func (d *Driver) Resume(sessionID string) error {
	ctrl, ok := d.controls.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s is not running in this process", pipeline.ErrInvalidTransition, sessionID)
	}
	if !ctrl.paused.Load() {
		return fmt.Errorf("%w: session %s is not paused", pipeline.ErrInvalidTransition, sessionID)
	}
	select {
	case ctrl.resume <- struct{}{}:
	default:
	}
	return nil
}

// Cancel requests immediate cancellation of sessionID's in-flight work.
func (d *Driver) Cancel(sessionID string) error {
	ctrl, ok := d.controls.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s is not running in this process", pipeline.ErrInvalidTransition, sessionID)
	}
	if ctrl.cancel != nil {
		ctrl.cancel()
	}
	// Unblock a pause-wait so terminateCancelled observes ctx.Done().
	ctrl.paused.Store(false)
	select {
	case ctrl.resume <- struct{}{}:
	default:
	}
	return nil
}

// Retry re-drives a failed session from its first non-completed phase.
// Valid only when status=failed and RetryCount is within the session
// retry budget. Retry itself calls IncrementRetry, sets the session back to
// queued and persists it; the supervisor pool then claims and runs it again.
func (d *Driver) Retry(ctx context.Context, session *pipeline.Session) error {
	if session.Status != pipeline.StatusFailed {
		return fmt.Errorf("%w: session %s is not failed", pipeline.ErrInvalidTransition, session.ID)
	}
	if !session.IncrementRetry() {
		return fmt.Errorf("%w: session %s exhausted its retry budget", pipeline.ErrInvalidTransition, session.ID)
	}
	session.SetStatus(pipeline.StatusQueued)
	return d.Repos.Sessions.Update(ctx, session)
}

// ProgressSnapshot is GetProgress's read-only projection (spec §4.1).
type ProgressSnapshot struct {
	SessionID    string
	Status       pipeline.Status
	CurrentPhase int
	PhaseResults []*pipeline.PhaseResult
	ErrorMessage string
}

// GetProgress returns a point-in-time snapshot of a session's status and
// per-phase results.
func (d *Driver) GetProgress(ctx context.Context, sessionID string) (ProgressSnapshot, error) {
	session, err := d.Repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	results, err := d.Repos.PhaseResults.ListBySession(ctx, sessionID)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	return ProgressSnapshot{
		SessionID:    session.ID,
		Status:       session.Status,
		CurrentPhase: session.CurrentPhase,
		PhaseResults: results,
		ErrorMessage: session.ErrorMessage,
	}, nil
}
