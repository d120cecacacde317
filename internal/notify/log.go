package notify

import (
	"context"

	"prescreen-backend/internal/shared/telemetry"
)

// LogNotifier writes events to the log. Default when no webhook is
// configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, ev Event) {
	telemetry.Info("pipeline notification", map[string]any{
		"type":        ev.Type,
		"tenant_id":   ev.TenantID,
		"interviewId": ev.InterviewID,
		"reason":      ev.Reason,
	})
}

var _ Notifier = LogNotifier{}
