package calls

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/shared/metrics"
	"prescreen-backend/internal/shared/server/respond"
	"prescreen-backend/internal/shared/telemetry"
	"prescreen-backend/internal/telephony"
	"prescreen-backend/internal/telephony/twilio"
)

// EventSink consumes verified provider events. Implemented by the pipeline
// orchestrator.
type EventSink interface {
	HandleCallEvent(ctx context.Context, ev telephony.Event) error
	HandleRecordingEvent(ctx context.Context, ev telephony.Event) error
}

// WebhookHandler terminates provider callbacks. Every event is authenticated
// by signature before it can touch pipeline state; stale and duplicate events
// are acknowledged with 200 so the provider stops retrying them.
type WebhookHandler struct {
	AuthToken string
	// BaseURL is the public URL the provider was given for callbacks. The
	// signature covers the full external URL, which may differ from what the
	// server sees behind a proxy.
	BaseURL string
	Sink    EventSink
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(authToken, baseURL string, sink EventSink) *WebhookHandler {
	return &WebhookHandler{
		AuthToken: authToken,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Sink:      sink,
	}
}

// RegisterRoutes registers webhook routes on the group.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/telephony/status", h.status)
	rg.POST("/webhooks/telephony/recording", h.recording)
}

func (h *WebhookHandler) verify(c *gin.Context) bool {
	if err := c.Request.ParseForm(); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "malformed form body", nil)
		return false
	}
	requestURL := h.BaseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		requestURL += "?" + c.Request.URL.RawQuery
	}
	sig := c.GetHeader("X-Twilio-Signature")
	if sig == "" || !twilio.ValidateSignature(h.AuthToken, requestURL, c.Request.PostForm, sig) {
		telemetry.Warn("telephony webhook signature rejected", map[string]any{
			"path":      c.Request.URL.Path,
			"requestId": c.GetString("requestId"),
		})
		metrics.IncEventsDropped()
		respond.Error(c, http.StatusForbidden, "forbidden", "invalid signature", nil)
		return false
	}
	return true
}

func (h *WebhookHandler) status(c *gin.Context) {
	if !h.verify(c) {
		return
	}

	callSID := c.PostForm("CallSid")
	providerStatus := c.PostForm("CallStatus")
	if callSID == "" || StatusFromProvider(providerStatus) == "" {
		// Unknown event types are dropped, not errored; the provider vocabulary
		// grows over time.
		metrics.IncEventsDropped()
		c.Status(http.StatusOK)
		return
	}

	duration := 0
	if raw := c.PostForm("CallDuration"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			duration = parsed
		}
	}

	ev := telephony.Event{
		ProviderCallID:  callSID,
		Status:          providerStatus,
		DurationSeconds: duration,
	}
	if err := h.Sink.HandleCallEvent(c.Request.Context(), ev); err != nil {
		h.ack(c, ev, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *WebhookHandler) recording(c *gin.Context) {
	if !h.verify(c) {
		return
	}

	callSID := c.PostForm("CallSid")
	recordingURL := c.PostForm("RecordingUrl")
	if callSID == "" || recordingURL == "" {
		metrics.IncEventsDropped()
		c.Status(http.StatusOK)
		return
	}
	if status := c.PostForm("RecordingStatus"); status != "" && status != "completed" {
		c.Status(http.StatusOK)
		return
	}

	ev := telephony.Event{
		ProviderCallID: callSID,
		RecordingURL:   recordingURL,
		RecordingSID:   c.PostForm("RecordingSid"),
	}
	if err := h.Sink.HandleRecordingEvent(c.Request.Context(), ev); err != nil {
		h.ack(c, ev, err)
		return
	}
	c.Status(http.StatusOK)
}

// ack decides the webhook response for a sink error. Stale or duplicate
// events and events for unknown calls get a 200 so the provider does not
// retry; real failures get a 500 so it does.
func (h *WebhookHandler) ack(c *gin.Context, ev telephony.Event, err error) {
	if errors.Is(err, interviews.ErrStaleStage) || errors.Is(err, interviews.ErrNotFound) || errors.Is(err, ErrNotFound) {
		telemetry.Info("telephony event dropped", map[string]any{
			"providerCallId": ev.ProviderCallID,
			"status":         ev.Status,
			"reason":         err.Error(),
		})
		metrics.IncEventsDropped()
		c.Status(http.StatusOK)
		return
	}
	telemetry.Error("telephony event processing failed", map[string]any{
		"providerCallId": ev.ProviderCallID,
		"status":         ev.Status,
		"error":          err.Error(),
	})
	respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
}
