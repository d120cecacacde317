package artifacts

import "time"

// Kind classifies an artifact's content.
type Kind string

const (
	KindRecording  Kind = "recording"
	KindTranscript Kind = "transcript"
	KindAnalysis   Kind = "analysis"
	KindReport     Kind = "report"
)

// Status tracks whether the artifact's bytes have landed in object storage.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Artifact is a pointer into object storage plus the content hash recorded
// at write time. Readers re-hash on load and refuse content that drifted.
type Artifact struct {
	ID          string
	TenantID    string
	InterviewID string
	Kind        Kind
	StorageKey  string
	SHA256      string
	Status      Status
	CreatedAt   time.Time
}
