// Package memory provides in-process fakes of the pkg/repository interfaces
// for orchestrator and agent unit tests that don't need a real PostgreSQL
// instance, mirroring the teacher's hand-rolled test-double style
// (test_helpers_test.go) rather than a mocking framework.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-ai/storyforge/pkg/pipeline"
)

// SessionRepository is an in-memory pipeline.Session store.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*pipeline.Session
	heartbeats map[string]int64
}

// NewSessionRepository constructs an empty in-memory SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions:   make(map[string]*pipeline.Session),
		heartbeats: make(map[string]int64),
	}
}

func (r *SessionRepository) Create(_ context.Context, s *pipeline.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := s.Clone()
	r.sessions[s.ID] = &clone
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id string) (*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	clone := s.Clone()
	return &clone, nil
}

func (r *SessionRepository) Update(_ context.Context, s *pipeline.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return pipeline.ErrNotFound
	}
	clone := s.Clone()
	r.sessions[s.ID] = &clone
	return nil
}

func (r *SessionRepository) ListByStatus(_ context.Context, status pipeline.Status, limit int) ([]*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.Session
	for _, s := range r.sortedByCreatedAt() {
		if s.Status == status {
			clone := s.Clone()
			out = append(out, &clone)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *SessionRepository) ClaimNextQueued(_ context.Context, claimedBy string) (*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sortedByCreatedAt() {
		if s.Status == pipeline.StatusQueued {
			s.Start()
			r.heartbeats[s.ID] = s.UpdatedAt.Unix()
			clone := s.Clone()
			return &clone, nil
		}
	}
	return nil, pipeline.ErrNotFound
}

func (r *SessionRepository) Heartbeat(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return pipeline.ErrNotFound
	}
	s.SetStatus(s.Status)
	r.heartbeats[id] = s.UpdatedAt.Unix()
	return nil
}

func (r *SessionRepository) ListOrphaned(_ context.Context, olderThan int64) ([]*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.Session
	for _, s := range r.sessions {
		if s.Status != pipeline.StatusProcessing {
			continue
		}
		hb, ok := r.heartbeats[s.ID]
		if !ok || hb < olderThan {
			clone := s.Clone()
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *SessionRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, s := range r.sessions {
		if !s.Status.IsTerminal() {
			continue
		}
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			delete(r.heartbeats, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *SessionRepository) sortedByCreatedAt() []*pipeline.Session {
	out := make([]*pipeline.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PhaseResultRepository is an in-memory pipeline.PhaseResult store keyed by
// (sessionID, phaseNumber).
type PhaseResultRepository struct {
	mu      sync.Mutex
	results map[string]*pipeline.PhaseResult
}

// NewPhaseResultRepository constructs an empty in-memory PhaseResultRepository.
func NewPhaseResultRepository() *PhaseResultRepository {
	return &PhaseResultRepository{results: make(map[string]*pipeline.PhaseResult)}
}

func phaseKey(sessionID string, phase int) string {
	return sessionID + ":" + string(rune('0'+phase))
}

func (r *PhaseResultRepository) Upsert(_ context.Context, res *pipeline.PhaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *res
	r.results[phaseKey(res.SessionID, res.PhaseNumber)] = &copy
	return nil
}

func (r *PhaseResultRepository) Get(_ context.Context, sessionID string, phaseNumber int) (*pipeline.PhaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[phaseKey(sessionID, phaseNumber)]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	copy := *res
	return &copy, nil
}

func (r *PhaseResultRepository) ListBySession(_ context.Context, sessionID string) ([]*pipeline.PhaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.PhaseResult
	for _, res := range r.results {
		if res.SessionID == sessionID {
			copy := *res
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseNumber < out[j].PhaseNumber })
	return out, nil
}

// ContentRepository is an in-memory pipeline.GeneratedContent store with
// dedup by (SessionID, PhaseNumber, ContentType, ContentHash).
type ContentRepository struct {
	mu    sync.Mutex
	byID  map[string]*pipeline.GeneratedContent
	byKey map[string]string // dedup key -> id
	seq   int
}

// NewContentRepository constructs an empty in-memory ContentRepository.
func NewContentRepository() *ContentRepository {
	return &ContentRepository{
		byID:  make(map[string]*pipeline.GeneratedContent),
		byKey: make(map[string]string),
	}
}

func contentDedupKey(sessionID string, phase int, ct pipeline.ContentType, hash string) string {
	return sessionID + "|" + string(rune('0'+phase)) + "|" + string(ct) + "|" + hash
}

func (r *ContentRepository) Create(_ context.Context, c *pipeline.GeneratedContent) (*pipeline.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contentDedupKey(c.SessionID, c.PhaseNumber, c.ContentType, c.ContentHash)
	if id, ok := r.byKey[key]; ok {
		existing := *r.byID[id]
		return &existing, nil
	}
	copy := *c
	r.byID[c.ID] = &copy
	r.byKey[key] = c.ID
	return &copy, nil
}

func (r *ContentRepository) Get(_ context.Context, id string) (*pipeline.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (r *ContentRepository) FindByHash(_ context.Context, sessionID string, phase int, ct pipeline.ContentType, hash string) (*pipeline.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[contentDedupKey(sessionID, phase, ct, hash)]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	copy := *r.byID[id]
	return &copy, nil
}

func (r *ContentRepository) ListBySession(_ context.Context, sessionID string) ([]*pipeline.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.GeneratedContent
	for _, c := range r.byID {
		if c.SessionID == sessionID {
			copy := *c
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ContentRepository) UpdateStatus(_ context.Context, id string, status pipeline.GeneratedContentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return pipeline.ErrNotFound
	}
	c.Status = status
	return nil
}

// PreviewRepository is an in-memory pipeline.PreviewVersion store.
type PreviewRepository struct {
	mu    sync.Mutex
	items []*pipeline.PreviewVersion
}

// NewPreviewRepository constructs an empty in-memory PreviewRepository.
func NewPreviewRepository() *PreviewRepository { return &PreviewRepository{} }

func (r *PreviewRepository) Create(_ context.Context, p *pipeline.PreviewVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *p
	r.items = append(r.items, &copy)
	return nil
}

func (r *PreviewRepository) LatestForPhase(_ context.Context, sessionID string, phaseNumber int) (*pipeline.PreviewVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *pipeline.PreviewVersion
	for _, p := range r.items {
		if p.SessionID == sessionID && p.PhaseNumber == phaseNumber {
			if latest == nil || p.Version > latest.Version {
				latest = p
			}
		}
	}
	if latest == nil {
		return nil, pipeline.ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

func (r *PreviewRepository) ListBySession(_ context.Context, sessionID string) ([]*pipeline.PreviewVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.PreviewVersion
	for _, p := range r.items {
		if p.SessionID == sessionID {
			copy := *p
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PhaseNumber != out[j].PhaseNumber {
			return out[i].PhaseNumber < out[j].PhaseNumber
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// PruneOldVersions keeps, per (session, phase), only the keep most recent
// versions, deleting the rest.
func (r *PreviewRepository) PruneOldVersions(_ context.Context, keep int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type groupKey struct {
		sessionID string
		phase     int
	}
	groups := make(map[groupKey][]*pipeline.PreviewVersion)
	for _, p := range r.items {
		k := groupKey{p.SessionID, p.PhaseNumber}
		groups[k] = append(groups[k], p)
	}

	kept := make([]*pipeline.PreviewVersion, 0, len(r.items))
	deleted := 0
	for _, versions := range groups {
		sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
		for i, v := range versions {
			if i < keep {
				kept = append(kept, v)
			} else {
				deleted++
			}
		}
	}
	r.items = kept
	return deleted, nil
}

// FeedbackRepository is an in-memory pipeline.FeedbackRecord store.
type FeedbackRepository struct {
	mu    sync.Mutex
	items []*pipeline.FeedbackRecord
}

// NewFeedbackRepository constructs an empty in-memory FeedbackRepository.
func NewFeedbackRepository() *FeedbackRepository { return &FeedbackRepository{} }

func (r *FeedbackRepository) Create(_ context.Context, f *pipeline.FeedbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *f
	r.items = append(r.items, &copy)
	return nil
}

func (r *FeedbackRepository) ListByPhase(_ context.Context, sessionID string, phaseNumber int) ([]*pipeline.FeedbackRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipeline.FeedbackRecord
	for _, f := range r.items {
		if f.SessionID == sessionID && f.PhaseNumber == phaseNumber {
			copy := *f
			out = append(out, &copy)
		}
	}
	return out, nil
}
