package consent

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/directory"
	"prescreen-backend/internal/shared/server/respond"
)

// Handler exposes the public, token-authenticated consent endpoints.
type Handler struct {
	Svc *Service
	Dir directory.Directory
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, dir directory.Directory) *Handler {
	return &Handler{Svc: svc, Dir: dir}
}

// RegisterRoutes registers consent routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/consent/:token", h.page)
	rg.POST("/consent/:token", h.decide)
}

type pageResponse struct {
	CandidateName  string `json:"candidateName"`
	AlreadyDecided bool   `json:"alreadyDecided"`
	Granted        bool   `json:"granted"`
	ExpiresAt      string `json:"expiresAt"`
}

func (h *Handler) page(c *gin.Context) {
	rec, err := h.Svc.Repo.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil || rec.Status == StatusSuperseded {
		respond.Error(c, http.StatusNotFound, "invalid_token", "Consent link is invalid", nil)
		return
	}

	candidateName := ""
	if cand, err := h.Dir.Candidate(c.Request.Context(), rec.TenantID, rec.CandidateID); err == nil {
		candidateName = cand.Name
	}

	respond.OK(c, pageResponse{
		CandidateName:  candidateName,
		AlreadyDecided: rec.Decided(),
		Granted:        rec.Status == StatusGranted,
		ExpiresAt:      rec.ExpiresAt.Format(time.RFC3339),
	})
}

type decideRequest struct {
	Granted *bool `json:"granted"`
}

type decideResponse struct {
	ID        string `json:"id"`
	Granted   bool   `json:"granted"`
	DecidedAt string `json:"decidedAt,omitempty"`
}

func (h *Handler) decide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Granted == nil {
		respond.Error(c, http.StatusBadRequest, "validation", "granted is required", nil)
		return
	}

	rec, err := h.Svc.Consume(c.Request.Context(), c.Param("token"), *req.Granted, "web", c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, ErrConsentMissing):
			respond.Error(c, http.StatusNotFound, "invalid_token", "Consent link is invalid", nil)
		case errors.Is(err, ErrConsentExpired):
			respond.Error(c, http.StatusGone, "consent_expired", "Consent link has expired", nil)
		case errors.Is(err, ErrTokenAlreadyConsumed):
			respond.Error(c, http.StatusConflict, "token_already_consumed", "A different decision was already recorded", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}
		return
	}

	out := decideResponse{ID: rec.ID, Granted: rec.Status == StatusGranted}
	if rec.DecidedAt != nil {
		out.DecidedAt = rec.DecidedAt.Format(time.RFC3339)
	}
	respond.OK(c, out)
}
