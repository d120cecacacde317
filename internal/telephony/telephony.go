package telephony

import (
	"context"
	"errors"
)

// ErrNoRecording means the provider has no media for the call and never
// will. The call attempt cannot produce a transcript.
var ErrNoRecording = errors.New("no recording for call")

// ErrRecordingNotReady means the provider is still processing the media.
// The download succeeds on a later try.
var ErrRecordingNotReady = errors.New("recording not ready")

// PlaceRequest describes one outbound screening call.
type PlaceRequest struct {
	To             string
	From           string
	InterviewID    string
	StatusCallback string
	// RecordingCallback receives the recording-ready notification once the
	// provider has finished processing the call audio.
	RecordingCallback string
}

// Event is a normalized provider call event. Status values follow the
// provider's vocabulary: queued, ringing, in-progress, completed, busy,
// no-answer, failed, canceled.
type Event struct {
	ProviderCallID  string
	Status          string
	DurationSeconds int
	RecordingURL    string
	RecordingSID    string
}

// Provider places outbound calls with a telephony vendor.
type Provider interface {
	Place(ctx context.Context, req PlaceRequest) (providerCallID string, err error)
}

// Call outcome statuses as delivered on status callbacks.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// TerminalStatus reports whether the status ends the call.
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// AnswerFailure reports whether the status means the candidate never picked
// up. These outcomes are retried with a fresh call attempt.
func AnswerFailure(status string) bool {
	switch status {
	case StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
