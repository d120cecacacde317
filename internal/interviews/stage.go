package interviews

// Stage is an interview's position in the orchestration state machine.
type Stage string

const (
	StageScheduled       Stage = "scheduled"
	StageAwaitingConsent Stage = "awaiting_consent"
	StageConsentGranted  Stage = "consent_granted"
	StageCalling         Stage = "calling"
	StageCallCompleted   Stage = "call_completed"
	StageTranscribing    Stage = "transcribing"
	StageTranscribed     Stage = "transcribed"
	StageAnalyzing       Stage = "analyzing"
	StageAnalyzed        Stage = "analyzed"
	StageReportReady     Stage = "report_ready"

	StageConsentDenied       Stage = "consent_denied"
	StageCallFailed          Stage = "call_failed"
	StageTranscriptionFailed Stage = "transcription_failed"
	StageAnalysisFailed      Stage = "analysis_failed"
	StageCancelled           Stage = "cancelled"
)

// transitions is the full set of legal stage edges. Calling loops back to
// itself for fresh call attempts; ReportReady loops for report regeneration.
var transitions = map[Stage][]Stage{
	StageScheduled:       {StageAwaitingConsent, StageCancelled},
	StageAwaitingConsent: {StageConsentGranted, StageConsentDenied, StageCancelled},
	StageConsentGranted:  {StageCalling, StageCancelled},
	StageCalling:         {StageCalling, StageCallCompleted, StageCallFailed, StageCancelled},
	StageCallCompleted:   {StageTranscribing, StageCallFailed, StageTranscriptionFailed, StageCancelled},
	StageTranscribing:    {StageTranscribed, StageTranscriptionFailed, StageCancelled},
	StageTranscribed:     {StageAnalyzing, StageAnalysisFailed, StageCancelled},
	StageAnalyzing:       {StageAnalyzed, StageAnalysisFailed, StageCancelled},
	StageAnalyzed:        {StageReportReady, StageAnalysisFailed, StageCancelled},
	StageReportReady:     {StageReportReady},
}

// Terminal reports whether the stage admits no further progress. Terminal
// interviews are immutable except for explicit report regeneration.
func (s Stage) Terminal() bool {
	switch s {
	case StageReportReady, StageConsentDenied, StageCallFailed,
		StageTranscriptionFailed, StageAnalysisFailed, StageCancelled:
		return true
	}
	return false
}

// Failed reports whether the stage is a terminal failure.
func (s Stage) Failed() bool {
	switch s {
	case StageConsentDenied, StageCallFailed, StageTranscriptionFailed, StageAnalysisFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
