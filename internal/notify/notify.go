package notify

import "context"

// Event is an outbound notification about pipeline progress.
type Event struct {
	Type        string `json:"type"`
	TenantID    string `json:"tenantId"`
	InterviewID string `json:"interviewId"`
	// ConsentURL is set on consent_requested events; the operator forwards it
	// to the candidate.
	ConsentURL string `json:"consentUrl,omitempty"`
	// ReportArtifactID is set on report_ready events.
	ReportArtifactID string `json:"reportArtifactId,omitempty"`
	// Reason is set on interview_failed events.
	Reason string `json:"reason,omitempty"`
}

// Event types.
const (
	TypeConsentRequested = "consent_requested"
	TypeConsentDecided   = "consent_decided"
	TypeReportReady      = "report_ready"
	TypeInterviewFailed  = "interview_failed"
)

// Notifier delivers pipeline events to the operator's systems. Delivery is
// best effort; the pipeline never blocks or fails on notification errors.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
