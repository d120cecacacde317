// Package jobs defines the asynchronous job contract shared by the
// transcription and analysis engines. Both engines accept work with Submit,
// returning an opaque handle, and report progress through Poll until the job
// reaches a terminal status.
package jobs

import (
	"context"
	"errors"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is a Poll outcome. Output is only set once Status is completed;
// Reason is only set once Status is failed.
type Result struct {
	Status Status
	Output []byte
	Reason string
}

// ErrUnknownJob is returned by Poll for a handle the engine does not
// recognize, typically after an engine restart lost its state.
var ErrUnknownJob = errors.New("unknown job handle")

// Engine runs asynchronous jobs against an external service.
type Engine interface {
	// Submit starts a job over the given input and returns an opaque handle
	// for polling. The input bytes are engine-specific.
	Submit(ctx context.Context, input []byte) (handle string, err error)
	// Poll reports the job's current state. Pending results carry neither
	// output nor reason.
	Poll(ctx context.Context, handle string) (Result, error)
}
