package interviews

import "time"

// Interview tracks one candidate/position screening attempt end-to-end. It is
// the single source of truth for the pipeline; only the orchestrator mutates
// it, and every mutation is serialized per interview and guarded by a
// compare-and-swap on the stage.
type Interview struct {
	ID          string
	TenantID    string
	CandidateID string
	PositionID  string
	Stage       Stage
	ConsentID   string

	ProviderCallID string

	RecordingArtifactID  string
	TranscriptArtifactID string
	AnalysisArtifactID   string
	ReportArtifactID     string

	CallAttempts       int
	TranscribeAttempts int
	AnalyzeAttempts    int
	IntegrityFailures  int

	FailureReason string

	CreatedAt      time.Time
	StageEnteredAt time.Time
	CompletedAt    *time.Time
}
