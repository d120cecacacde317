package calls

import "time"

// Status tracks one call attempt's provider state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no_answer"
	StatusBusy       Status = "busy"
	StatusCanceled   Status = "canceled"
)

// Active reports whether the attempt still occupies the line: the provider
// accepted the dial and has not reported a terminal outcome yet.
func (s Status) Active() bool {
	switch s {
	case StatusQueued, StatusRinging, StatusInProgress:
		return true
	}
	return false
}

// Attempt is one outbound dial for an interview. An interview may accumulate
// several attempts before the pipeline gives up.
type Attempt struct {
	ID              string
	TenantID        string
	InterviewID     string
	Number          int
	ProviderCallID  string
	Status          Status
	DurationSeconds int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusFromProvider maps provider callback vocabulary to attempt statuses.
// Unknown values map to empty, which callers drop.
func StatusFromProvider(s string) Status {
	switch s {
	case "queued":
		return StatusQueued
	case "ringing":
		return StatusRinging
	case "in-progress":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "no-answer":
		return StatusNoAnswer
	case "busy":
		return StatusBusy
	case "canceled":
		return StatusCanceled
	}
	return ""
}
