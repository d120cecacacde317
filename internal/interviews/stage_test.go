package interviews

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"scheduled to awaiting consent", StageScheduled, StageAwaitingConsent, true},
		{"awaiting consent to granted", StageAwaitingConsent, StageConsentGranted, true},
		{"awaiting consent to denied", StageAwaitingConsent, StageConsentDenied, true},
		{"granted to calling", StageConsentGranted, StageCalling, true},
		{"calling retry loop", StageCalling, StageCalling, true},
		{"calling to completed", StageCalling, StageCallCompleted, true},
		{"calling to failed", StageCalling, StageCallFailed, true},
		{"completed call rejected short", StageCallCompleted, StageCallFailed, true},
		{"transcribing to transcribed", StageTranscribing, StageTranscribed, true},
		{"analyzed to report", StageAnalyzed, StageReportReady, true},
		{"report regeneration loop", StageReportReady, StageReportReady, true},

		{"no skipping consent", StageScheduled, StageCalling, false},
		{"no backwards move", StageTranscribed, StageCalling, false},
		{"denied is terminal", StageConsentDenied, StageCalling, false},
		{"cancelled is terminal", StageCancelled, StageScheduled, false},
		{"report cannot restart pipeline", StageReportReady, StageAnalyzing, false},
		{"failed call cannot resume", StageCallFailed, StageCalling, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTerminalStages(t *testing.T) {
	terminal := []Stage{
		StageReportReady, StageConsentDenied, StageCallFailed,
		StageTranscriptionFailed, StageAnalysisFailed, StageCancelled,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []Stage{
		StageScheduled, StageAwaitingConsent, StageConsentGranted, StageCalling,
		StageCallCompleted, StageTranscribing, StageTranscribed, StageAnalyzing, StageAnalyzed,
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestFailedStages(t *testing.T) {
	if StageReportReady.Failed() {
		t.Error("report_ready is terminal but not a failure")
	}
	if StageCancelled.Failed() {
		t.Error("cancelled is terminal but not a failure")
	}
	for _, s := range []Stage{StageConsentDenied, StageCallFailed, StageTranscriptionFailed, StageAnalysisFailed} {
		if !s.Failed() {
			t.Errorf("%s should be a failure stage", s)
		}
	}
}

// Every non-terminal stage except report_ready must be cancellable; the
// operator can abandon an interview at any point before it finishes.
func TestEveryActiveStageIsCancellable(t *testing.T) {
	for from := range transitions {
		if from.Terminal() {
			continue
		}
		if !CanTransition(from, StageCancelled) {
			t.Errorf("active stage %s is not cancellable", from)
		}
	}
}
