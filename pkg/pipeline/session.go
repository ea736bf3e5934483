// Package pipeline defines the core domain model shared by every component
// of the content-generation pipeline: sessions, phase results, generated
// content, generation parameters, and quality scores.
package pipeline

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a Session.
type Status string

// Session status values. See the state machine in the orchestrator package
// for the legal transitions between these.
const (
	StatusQueued          Status = "queued"
	StatusProcessing      Status = "processing"
	StatusWaitingFeedback Status = "waiting_feedback"
	StatusPaused          Status = "paused"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether no further transitions are legal from status s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return true
	default:
		return false
	}
}

// DefaultMaxSessionRetries bounds Session.RetryCount (spec §3).
const DefaultMaxSessionRetries = 3

// Session represents one end-to-end run of the seven-phase pipeline for a
// single user input. Mutated only by the orchestrator's driver for a given
// session and by the HITL feedback handler; reads from other goroutines
// (progress projections) must go through Clone.
type Session struct {
	ID           string
	UserID       string
	Title        string
	InputText    string
	Params       GenerationParameters
	Status       Status
	CurrentPhase int // 0..7; 0 = not started
	HITLEnabled  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	RetryCount   int
	ErrorMessage string

	mu sync.RWMutex
	// prePauseStatus remembers whether Pause was called from processing or
	// waiting_feedback, so Resume restores the correct state (spec §4.1:
	// processing/waitingFeedback -> paused, paused -> processing|waitingFeedback).
	prePauseStatus Status
}

// NewSession constructs a fresh queued session.
func NewSession(id, userID, title, inputText string, params GenerationParameters) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		UserID:      userID,
		Title:       title,
		InputText:   inputText,
		Params:      params,
		Status:      StatusQueued,
		HITLEnabled: params.EnableHITL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates UpdatedAt under lock; called by every mutator below.
func (s *Session) touchLocked() {
	s.UpdatedAt = time.Now().UTC()
}

// SetStatus transitions the session to a new status (thread-safe).
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.touchLocked()
}

// Start marks the session as processing beginning at phase 1.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.Status = StatusProcessing
	s.CurrentPhase = 1
	s.StartedAt = &now
	s.touchLocked()
}

// AdvancePhase moves the session to the given phase, preserving status.
func (s *Session) AdvancePhase(phase int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentPhase = phase
	s.touchLocked()
}

// Complete marks the session completed at phase 7.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CurrentPhase = 7
	s.CompletedAt = &now
	s.touchLocked()
}

// Fail marks the session failed with a descriptive error.
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusFailed
	s.ErrorMessage = reason
	s.touchLocked()
}

// Cancel marks the session cancelled with an optional reason.
func (s *Session) Cancel(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusCancelled
	if reason != "" {
		s.ErrorMessage = reason
	}
	s.touchLocked()
}

// Pause suspends a processing or waiting_feedback session, remembering
// which so Resume can restore it. Returns ErrInvalidTransition if the
// session is in neither state.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusProcessing && s.Status != StatusWaitingFeedback {
		return ErrInvalidTransition
	}
	s.prePauseStatus = s.Status
	s.Status = StatusPaused
	s.touchLocked()
	return nil
}

// Resume restores a paused session to whichever state it was paused from.
// Returns ErrInvalidTransition if the session is not paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusPaused {
		return ErrInvalidTransition
	}
	if s.prePauseStatus == "" {
		s.prePauseStatus = StatusProcessing
	}
	s.Status = s.prePauseStatus
	s.prePauseStatus = ""
	s.touchLocked()
	return nil
}

// IncrementRetry bumps RetryCount and reports whether the session may still
// be retried (RetryCount <= DefaultMaxSessionRetries after incrementing).
func (s *Session) IncrementRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetryCount++
	s.touchLocked()
	return s.RetryCount <= DefaultMaxSessionRetries
}

// Clone returns a value copy safe for concurrent reads (progress
// projections), mirroring the teacher's session.Clone pattern.
func (s *Session) Clone() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := *s
	clone.mu = sync.RWMutex{}
	return clone
}
