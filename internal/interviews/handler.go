package interviews

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/shared/server/middleware"
	"prescreen-backend/internal/shared/server/respond"
)

// Orchestrator is the slice of the pipeline the HTTP layer needs.
type Orchestrator interface {
	Schedule(ctx context.Context, tenantID, candidateID, positionID string) (Interview, error)
	Get(ctx context.Context, tenantID, id string) (Interview, error)
	Cancel(ctx context.Context, tenantID, id string) error
	RegenerateReport(ctx context.Context, tenantID, id string) error
}

// ErrInvalidInput is returned by the orchestrator for bad schedule requests.
var ErrInvalidInput = errors.New("invalid input")

// Handler exposes the operator-facing interview endpoints.
type Handler struct {
	Pipeline Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(p Orchestrator) *Handler {
	return &Handler{Pipeline: p}
}

// RegisterRoutes registers interview routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/interviews", h.schedule)
	rg.GET("/interviews/:id", h.get)
	rg.POST("/interviews/:id/cancel", h.cancel)
	rg.POST("/interviews/:id/report", h.regenerateReport)
}

type scheduleRequest struct {
	CandidateID string `json:"candidateId"`
	PositionID  string `json:"positionId"`
}

type interviewResponse struct {
	ID                   string `json:"id"`
	Stage                string `json:"stage"`
	CandidateID          string `json:"candidateId"`
	PositionID           string `json:"positionId"`
	CallAttempts         int    `json:"callAttempts"`
	RecordingArtifactID  string `json:"recordingArtifactId,omitempty"`
	TranscriptArtifactID string `json:"transcriptArtifactId,omitempty"`
	AnalysisArtifactID   string `json:"analysisArtifactId,omitempty"`
	ReportArtifactID     string `json:"reportArtifactId,omitempty"`
	FailureReason        string `json:"failureReason,omitempty"`
	CreatedAt            string `json:"createdAt"`
	CompletedAt          string `json:"completedAt,omitempty"`
}

func toResponse(iv Interview) interviewResponse {
	out := interviewResponse{
		ID:                   iv.ID,
		Stage:                string(iv.Stage),
		CandidateID:          iv.CandidateID,
		PositionID:           iv.PositionID,
		CallAttempts:         iv.CallAttempts,
		RecordingArtifactID:  iv.RecordingArtifactID,
		TranscriptArtifactID: iv.TranscriptArtifactID,
		AnalysisArtifactID:   iv.AnalysisArtifactID,
		ReportArtifactID:     iv.ReportArtifactID,
		FailureReason:        iv.FailureReason,
		CreatedAt:            iv.CreatedAt.Format(time.RFC3339),
	}
	if iv.CompletedAt != nil {
		out.CompletedAt = iv.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func (h *Handler) schedule(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant", nil)
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" || strings.TrimSpace(req.PositionID) == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "candidateId and positionId are required", nil)
		return
	}

	iv, err := h.Pipeline.Schedule(c.Request.Context(), tenantID, req.CandidateID, req.PositionID)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusUnprocessableEntity, "validation", "unknown candidate or position", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		return
	}

	c.Set("interviewId", iv.ID)
	respond.Created(c, toResponse(iv))
}

func (h *Handler) get(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	iv, err := h.Pipeline.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "interview not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		return
	}
	respond.OK(c, toResponse(iv))
}

func (h *Handler) cancel(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	err := h.Pipeline.Cancel(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview not found", nil)
		case errors.Is(err, ErrStaleStage):
			respond.Error(c, http.StatusConflict, "precondition", "interview is already terminal", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}
		return
	}
	respond.OK(c, gin.H{"cancelled": true})
}

func (h *Handler) regenerateReport(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	err := h.Pipeline.RegenerateReport(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview not found", nil)
		case errors.Is(err, ErrStaleStage):
			respond.Error(c, http.StatusConflict, "precondition", "report can only be regenerated once ready", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}
		return
	}
	respond.OK(c, gin.H{"queued": true})
}
