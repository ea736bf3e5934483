// Package api exposes the pipeline's caller surface over HTTP: session
// submission, progress polling, HITL feedback, and the pause/resume/cancel/
// retry controls, grounded on the teacher's gin-based API module
// (pkg/api/handlers.go) — storyforge has no WebSocket hub to mirror, so
// progress is delivered by polling GetProgress rather than the teacher's
// wsHub.Broadcast, per SPEC_FULL.md's "WebSocket-free polling channel".
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwell-ai/storyforge/pkg/config"
	"github.com/inkwell-ai/storyforge/pkg/orchestrator"
	"github.com/inkwell-ai/storyforge/pkg/pipeline"
	"github.com/inkwell-ai/storyforge/pkg/repository"
	"github.com/inkwell-ai/storyforge/pkg/supervisor"
)

// Server holds the dependencies every handler needs.
type Server struct {
	sessions repository.SessionRepository
	driver   *orchestrator.Driver
	pool     *supervisor.Pool
	engine   *gin.Engine
}

// NewServer builds a gin.Engine with every storyforge route registered.
// pool may be nil (health then always reports a static healthy status).
func NewServer(cfg *config.ServerConfig, sessions repository.SessionRepository, driver *orchestrator.Driver, pool *supervisor.Pool) *Server {
	gin.SetMode(cfg.GinMode)
	s := &Server{sessions: sessions, driver: driver, pool: pool, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin.Engine, for ListenAndServe or testing
// with httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/v1/sessions")
	v1.POST("", s.submitSession)
	v1.GET("/:id/progress", s.getProgress)
	v1.POST("/:id/feedback", s.submitFeedback)
	v1.POST("/:id/pause", s.pauseSession)
	v1.POST("/:id/resume", s.resumeSession)
	v1.POST("/:id/cancel", s.cancelSession)
	v1.POST("/:id/retry", s.retrySession)
}

// submitSessionRequest is the POST /v1/sessions body.
type submitSessionRequest struct {
	UserID                      string  `json:"userId" binding:"required"`
	Title                       string  `json:"title"`
	InputText                   string  `json:"inputText" binding:"required"`
	PrimaryGenre                string  `json:"primaryGenre"`
	QualityThreshold            float64 `json:"qualityThreshold"`
	EnableHITL                  bool    `json:"enableHitl"`
	MaxParallelImageGenerations int     `json:"maxParallelImageGenerations"`
	FallbackEnabled             *bool   `json:"fallbackEnabled"`
}

// submitSession creates a queued Session; the supervisor pool's poller
// claims and drives it asynchronously, so this handler never blocks on
// pipeline execution.
func (s *Server) submitSession(c *gin.Context) {
	var req submitSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := pipeline.DefaultParameters()
	if req.PrimaryGenre != "" {
		params.PrimaryGenre = req.PrimaryGenre
	}
	if req.QualityThreshold > 0 {
		params.QualityThreshold = req.QualityThreshold
	}
	params.EnableHITL = req.EnableHITL
	if req.MaxParallelImageGenerations > 0 {
		params.MaxParallelImageGenerations = req.MaxParallelImageGenerations
	}
	if req.FallbackEnabled != nil {
		params.FallbackEnabled = *req.FallbackEnabled
	}

	session := pipeline.NewSession(uuid.NewString(), req.UserID, req.Title, req.InputText, params)
	if err := s.sessions.Create(c.Request.Context(), session); err != nil {
		slog.Error("creating session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusAccepted, toSessionView(session))
}

func (s *Server) getProgress(c *gin.Context) {
	id := c.Param("id")
	snapshot, err := s.driver.GetProgress(c.Request.Context(), id)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type feedbackRequest struct {
	Phase    int            `json:"phase" binding:"required"`
	Approved bool           `json:"approved"`
	Payload  map[string]any `json:"payload"`
}

func (s *Server) submitFeedback(c *gin.Context) {
	id := c.Param("id")
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.driver.SubmitFeedback(c.Request.Context(), id, req.Phase, req.Approved, req.Payload); err != nil {
		respondSessionError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) pauseSession(c *gin.Context) {
	if err := s.driver.Pause(c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) resumeSession(c *gin.Context) {
	if err := s.driver.Resume(c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) cancelSession(c *gin.Context) {
	if err := s.driver.Cancel(c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// retrySession re-queues a failed session for the supervisor pool to pick
// up again, rather than re-running it inline on this request.
func (s *Server) retrySession(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if err := s.driver.Retry(ctx, session); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toSessionView(session))
}

func (s *Server) health(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	h := s.pool.Health(c.Request.Context())
	status := http.StatusOK
	if !h.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("handling session request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// sessionView is the JSON projection returned to callers; it omits the
// internal mutex Session.Clone carries.
type sessionView struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Title        string          `json:"title"`
	Status       pipeline.Status `json:"status"`
	CurrentPhase int             `json:"currentPhase"`
	CreatedAt    string          `json:"createdAt"`
}

func toSessionView(s *pipeline.Session) sessionView {
	return sessionView{
		ID:           s.ID,
		UserID:       s.UserID,
		Title:        s.Title,
		Status:       s.Status,
		CurrentPhase: s.CurrentPhase,
		CreatedAt:    s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
