package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"prescreen-backend/internal/artifacts"
	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/consent"
	"prescreen-backend/internal/directory"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/jobs"
	"prescreen-backend/internal/notify"
	"prescreen-backend/internal/queue"
	"prescreen-backend/internal/recordings"
	"prescreen-backend/internal/reports"
	"prescreen-backend/internal/shared/storage/object/local"
	"prescreen-backend/internal/telephony"
)

const (
	testTranscriptJSON = `{"text":"Interviewer: hello. Candidate: hi, I build Go services.","language":"en"}`
	testAnalysisJSON   = `{"overall_score":78,"recommendation":"advance","summary":"solid","skill_assessments":[{"skill":"Go","score":80,"evidence":"services work"}],"strengths":["clear"],"concerns":[]}`
)

type providerStub struct {
	mu       sync.Mutex
	requests []telephony.PlaceRequest
	err      error
}

func (p *providerStub) Place(ctx context.Context, req telephony.PlaceRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.requests = append(p.requests, req)
	return fmt.Sprintf("CA%d", len(p.requests)), nil
}

type engineStub struct {
	mu      sync.Mutex
	submits int
	// results are consumed per poll in order; when exhausted the last one
	// repeats.
	results   []jobs.Result
	submitErr error
}

func (e *engineStub) Submit(ctx context.Context, input []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitErr != nil {
		return "", e.submitErr
	}
	e.submits++
	return fmt.Sprintf("job-%d", e.submits), nil
}

func (e *engineStub) Poll(ctx context.Context, handle string) (jobs.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.results) == 0 {
		return jobs.Result{Status: jobs.StatusPending}, nil
	}
	res := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	return res, nil
}

type audioFetcherStub struct {
	err error
}

func (f *audioFetcherStub) FetchRecording(ctx context.Context, recordingURL string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), "audio/mpeg", nil
}

type fixture struct {
	orch       *Orchestrator
	repo       *interviews.MemoryRepo
	attempts   *calls.MemoryRepo
	consents   *consent.Service
	consentsDB *consent.MemoryRepo
	queue      *queue.MemoryClient
	provider   *providerStub
	sttStub    *engineStub
	llmStub    *engineStub
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:       interviews.NewMemoryRepo(),
		attempts:   calls.NewMemoryRepo(),
		consentsDB: consent.NewMemoryRepo(),
		queue:      queue.NewMemoryClient(),
		provider:   &providerStub{},
		sttStub:    &engineStub{results: []jobs.Result{{Status: jobs.StatusCompleted, Output: []byte(testTranscriptJSON)}}},
		llmStub:    &engineStub{results: []jobs.Result{{Status: jobs.StatusCompleted, Output: []byte(testAnalysisJSON)}}},
		clock:      time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }

	dir := directory.NewMemoryDirectory()
	dir.PutCandidate(directory.Candidate{ID: "c1", TenantID: "t1", Name: "Sam Ortiz", Phone: "+15551112222"})
	dir.PutPosition(directory.Position{ID: "p1", TenantID: "t1", Title: "Backend Engineer", SeniorityLevel: "senior", RequiredSkills: []string{"Go"}})

	store := artifacts.NewService(artifacts.NewMemoryRepo(), local.New(t.TempDir()))
	store.Now = now

	f.consents = &consent.Service{
		Repo:      f.consentsDB,
		Directory: dir,
		TTL:       168 * time.Hour,
		Now:       now,
	}

	f.orch = New(Options{
		Interviews: f.repo,
		Attempts:   f.attempts,
		Consents:   f.consents,
		Directory:  dir,
		Artifacts:  store,
		Queue:      f.queue,
		Provider:   f.provider,
		Retriever:  recordings.NewRetriever(&audioFetcherStub{}, store),
		STT:        f.sttStub,
		Analysis:   f.llmStub,
		Compiler:   reports.NewCompiler(store, dir),
		Config: Config{
			ConsentBaseURL:        "https://consent.local",
			WebhookBaseURL:        "https://api.local",
			MaxCallAttempts:       3,
			MinCallDuration:       10 * time.Second,
			MaxTranscribeAttempts: 3,
			MaxAnalyzeAttempts:    3,
			JobPollInterval:       30 * time.Second,
			JobSLA:                10 * time.Minute,
			StageTimeout:          30 * time.Minute,
			RetryBackoffBase:      30 * time.Second,
		},
		Now: now,
	})
	f.consents.OnDecision = f.orch.OnConsentDecision
	return f
}

// drain processes queued worker messages the way the worker binary does,
// delays ignored.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		msg, ok := f.queue.ReceiveAny()
		if !ok {
			return
		}
		var err error
		switch msg.Kind {
		case queue.KindPlaceCall:
			err = f.orch.PlaceCall(context.Background(), msg)
		case queue.KindFetchRecording:
			err = f.orch.ProcessRecording(context.Background(), msg)
		case queue.KindPollTranscription:
			err = f.orch.PollTranscription(context.Background(), msg)
		case queue.KindPollAnalysis:
			err = f.orch.PollAnalysis(context.Background(), msg)
		case queue.KindCompileReport:
			err = f.orch.CompileReport(context.Background(), msg)
		default:
			t.Fatalf("unknown message kind %q", msg.Kind)
		}
		if err != nil && !errors.Is(err, calls.ErrConsentRequired) && !errors.Is(err, interviews.ErrStaleStage) {
			t.Fatalf("processing %s: %v", msg.Kind, err)
		}
	}
	t.Fatal("queue did not drain")
}

func (f *fixture) schedule(t *testing.T) interviews.Interview {
	t.Helper()
	iv, err := f.orch.Schedule(context.Background(), "t1", "c1", "p1")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	return iv
}

func (f *fixture) consentToken(t *testing.T) string {
	t.Helper()
	rec, err := f.consentsDB.LatestByCandidate(context.Background(), "t1", "c1")
	if err != nil {
		t.Fatalf("latest consent: %v", err)
	}
	return rec.Token
}

func (f *fixture) stage(t *testing.T, id string) interviews.Stage {
	t.Helper()
	iv, err := f.repo.GetByID(context.Background(), "t1", id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return iv.Stage
}

func TestHappyPathToReportReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if got := f.stage(t, iv.ID); got != interviews.StageAwaitingConsent {
		t.Fatalf("stage after schedule = %s", got)
	}

	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", "203.0.113.9"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageConsentGranted {
		t.Fatalf("stage after consent = %s", got)
	}

	f.drain(t)
	if got := f.stage(t, iv.ID); got != interviews.StageCalling {
		t.Fatalf("stage after place call = %s", got)
	}

	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 180}); err != nil {
		t.Fatalf("HandleCallEvent: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCallCompleted {
		t.Fatalf("stage after completed call = %s", got)
	}

	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatalf("HandleRecordingEvent: %v", err)
	}
	f.drain(t)

	final, err := f.repo.GetByID(ctx, "t1", iv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Stage != interviews.StageReportReady {
		t.Fatalf("final stage = %s, want report_ready (reason %q)", final.Stage, final.FailureReason)
	}
	if final.RecordingArtifactID == "" || final.TranscriptArtifactID == "" || final.AnalysisArtifactID == "" || final.ReportArtifactID == "" {
		t.Fatalf("missing artifact refs: %+v", final)
	}
	if final.CallAttempts != 1 {
		t.Fatalf("call attempts = %d, want 1", final.CallAttempts)
	}
	if final.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestDeniedConsentTerminatesAndBlocksCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), false, "web", ""); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageConsentDenied {
		t.Fatalf("stage after denial = %s", got)
	}

	err := f.orch.PlaceCall(ctx, queue.Message{Kind: queue.KindPlaceCall, InterviewID: iv.ID, TenantID: "t1"})
	if !errors.Is(err, calls.ErrConsentRequired) {
		t.Fatalf("PlaceCall err = %v, want ErrConsentRequired", err)
	}
	if len(f.provider.requests) != 0 {
		t.Fatal("call placed despite denied consent")
	}
}

func TestNoAnswerRetriesThenSucceedsOnThirdAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		f.drain(t)
		ev := telephony.Event{ProviderCallID: fmt.Sprintf("CA%d", attempt), Status: "no-answer"}
		if err := f.orch.HandleCallEvent(ctx, ev); err != nil {
			t.Fatalf("attempt %d event: %v", attempt, err)
		}
		if got := f.stage(t, iv.ID); got != interviews.StageCalling {
			t.Fatalf("stage after no-answer %d = %s", attempt, got)
		}
	}

	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA3", Status: "completed", DurationSeconds: 200}); err != nil {
		t.Fatalf("third attempt event: %v", err)
	}

	final, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if final.Stage != interviews.StageCallCompleted {
		t.Fatalf("stage = %s, want call_completed", final.Stage)
	}
	if final.CallAttempts != 3 {
		t.Fatalf("call attempts = %d, want 3", final.CallAttempts)
	}
	rows, err := f.attempts.ListByInterview(ctx, "t1", iv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("attempt rows = %d, want 3", len(rows))
	}
}

func TestCallRetryBudgetExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		f.drain(t)
		ev := telephony.Event{ProviderCallID: fmt.Sprintf("CA%d", attempt), Status: "no-answer"}
		if err := f.orch.HandleCallEvent(ctx, ev); err != nil {
			t.Fatalf("attempt %d event: %v", attempt, err)
		}
	}

	final, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if final.Stage != interviews.StageCallFailed {
		t.Fatalf("stage = %s, want call_failed", final.Stage)
	}
	if final.CallAttempts != 3 {
		t.Fatalf("call attempts = %d, want exactly 3", final.CallAttempts)
	}
	if len(f.provider.requests) != 3 {
		t.Fatalf("provider calls = %d, want 3", len(f.provider.requests))
	}
	// Budget spent; no fourth dial is queued.
	if f.queue.Len() != 0 {
		t.Fatalf("queue has %d messages after terminal failure", f.queue.Len())
	}
}

func TestShortCallCountsAsFailedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	// Four seconds looks like voicemail, not a screening conversation.
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 4}); err != nil {
		t.Fatalf("HandleCallEvent: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCalling {
		t.Fatalf("stage = %s, want calling retry", got)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1 retry message", f.queue.Len())
	}
}

func TestRedeliveredDialMessageKeepsSingleActiveAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}

	msg, ok := f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindPlaceCall {
		t.Fatalf("expected place_call handoff, got %+v", msg)
	}
	if err := f.orch.PlaceCall(ctx, msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// At-least-once delivery hands the worker the same message again while
	// the first call is still ringing.
	if err := f.orch.PlaceCall(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if len(f.provider.requests) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(f.provider.requests))
	}
	rows, err := f.attempts.ListByInterview(ctx, "t1", iv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(rows))
	}
	after, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if after.CallAttempts != 1 || after.ProviderCallID != "CA1" {
		t.Fatalf("call attempts = %d, provider call = %q", after.CallAttempts, after.ProviderCallID)
	}

	// The surviving attempt's webhook still advances the interview.
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatalf("HandleCallEvent: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCallCompleted {
		t.Fatalf("stage = %s, want call_completed", got)
	}
}

func TestDuplicateAndStaleWebhooksAreNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	ev := telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}
	if err := f.orch.HandleCallEvent(ctx, ev); err != nil {
		t.Fatalf("first event: %v", err)
	}

	// Same terminal event again: the interview has advanced, so the event is
	// stale and must not change anything.
	err := f.orch.HandleCallEvent(ctx, ev)
	if !errors.Is(err, interviews.ErrStaleStage) {
		t.Fatalf("duplicate event err = %v, want ErrStaleStage", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCallCompleted {
		t.Fatalf("stage after duplicate = %s", got)
	}
}

func TestCancelSuppressesLaterEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	if err := f.orch.Cancel(ctx, "t1", iv.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCancelled {
		t.Fatalf("stage = %s", got)
	}

	err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120})
	if !errors.Is(err, interviews.ErrStaleStage) {
		t.Fatalf("event after cancel err = %v, want ErrStaleStage", err)
	}

	// Cancelling twice is a stale request.
	if err := f.orch.Cancel(ctx, "t1", iv.ID); !errors.Is(err, interviews.ErrStaleStage) {
		t.Fatalf("second cancel err = %v, want ErrStaleStage", err)
	}
}

func TestTranscriptionFailureExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.sttStub.results = []jobs.Result{{Status: jobs.StatusFailed, Reason: "empty transcript"}}
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	final, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if final.Stage != interviews.StageTranscriptionFailed {
		t.Fatalf("stage = %s, want transcription_failed", final.Stage)
	}
	if final.TranscribeAttempts != 3 {
		t.Fatalf("transcribe attempts = %d, want 3", final.TranscribeAttempts)
	}
	if final.FailureReason == "" {
		t.Fatal("missing failure reason")
	}
}

func TestRecordingUnavailableFailsCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}

	// The provider reports the media is gone for good.
	gone := fmt.Errorf("twilio recording gone: %w", telephony.ErrNoRecording)
	f.orch.retriever = recordings.NewRetriever(&audioFetcherStub{err: gone}, f.orch.store)

	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	final, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if final.Stage != interviews.StageCallFailed {
		t.Fatalf("stage = %s, want call_failed", final.Stage)
	}
	if final.FailureReason != "recording unavailable" {
		t.Fatalf("reason = %q", final.FailureReason)
	}
}

func TestTransientRecordingFetchErrorIsRetriable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}

	healthy := f.orch.retriever
	f.orch.retriever = recordings.NewRetriever(&audioFetcherStub{err: errors.New("dial tcp: i/o timeout")}, f.orch.store)

	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	msg, ok := f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindFetchRecording {
		t.Fatalf("expected fetch_recording, got %+v", msg)
	}

	// Network trouble surfaces as an error so the queue redelivers; the
	// interview must not move to a terminal stage.
	if err := f.orch.ProcessRecording(ctx, msg); err == nil {
		t.Fatal("expected error for transient fetch failure")
	}
	if got := f.stage(t, iv.ID); got != interviews.StageCallCompleted {
		t.Fatalf("stage = %s, want call_completed", got)
	}

	// Redelivery after the provider heals carries the pipeline through.
	f.orch.retriever = healthy
	if err := f.orch.ProcessRecording(ctx, msg); err != nil {
		t.Fatalf("ProcessRecording after recovery: %v", err)
	}
	f.drain(t)
	if got := f.stage(t, iv.ID); got != interviews.StageReportReady {
		t.Fatalf("stage = %s, want report_ready", got)
	}
}

func TestRecordingStillProcessingRetriesWithDelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}

	f.orch.retriever = recordings.NewRetriever(&audioFetcherStub{err: telephony.ErrRecordingNotReady}, f.orch.store)

	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	msg, ok := f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindFetchRecording {
		t.Fatalf("expected fetch_recording, got %+v", msg)
	}
	if err := f.orch.ProcessRecording(ctx, msg); err != nil {
		t.Fatalf("ProcessRecording: %v", err)
	}

	if got := f.stage(t, iv.ID); got != interviews.StageCallCompleted {
		t.Fatalf("stage = %s, want call_completed", got)
	}
	requeued, ok := f.queue.ReceiveAny()
	if !ok || requeued.Kind != queue.KindFetchRecording {
		t.Fatalf("expected requeued fetch, got %+v", requeued)
	}
	if requeued.DelaySeconds != 30 {
		t.Fatalf("delay = %d, want 30", requeued.DelaySeconds)
	}
	if requeued.RecordingURL != msg.RecordingURL {
		t.Fatalf("recording url dropped: %q", requeued.RecordingURL)
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)

	if _, err := f.orch.Get(ctx, "t2", iv.ID); !errors.Is(err, interviews.ErrNotFound) {
		t.Fatalf("cross-tenant Get err = %v, want ErrNotFound", err)
	}
	if err := f.orch.Cancel(ctx, "t2", iv.ID); !errors.Is(err, interviews.ErrNotFound) {
		t.Fatalf("cross-tenant Cancel err = %v, want ErrNotFound", err)
	}
	if _, err := f.orch.Schedule(ctx, "t2", "c1", "p1"); !errors.Is(err, interviews.ErrInvalidInput) {
		t.Fatalf("cross-tenant Schedule err = %v, want ErrInvalidInput", err)
	}
}

func TestRegenerateReportOnlyWhenReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	err := f.orch.RegenerateReport(ctx, "t1", iv.ID)
	if !errors.Is(err, interviews.ErrStaleStage) {
		t.Fatalf("regenerate before ready err = %v, want ErrStaleStage", err)
	}

	// Walk to report_ready.
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	before, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if before.Stage != interviews.StageReportReady {
		t.Fatalf("stage = %s", before.Stage)
	}

	if err := f.orch.RegenerateReport(ctx, "t1", iv.ID); err != nil {
		t.Fatalf("RegenerateReport: %v", err)
	}
	f.drain(t)

	after, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if after.Stage != interviews.StageReportReady {
		t.Fatalf("stage after regenerate = %s", after.Stage)
	}
	// Identical inputs compile to the identical artifact key.
	if after.ReportArtifactID == "" {
		t.Fatal("report artifact missing after regenerate")
	}
}

func TestSweeperTimesOutStalledCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if got := f.stage(t, iv.ID); got != interviews.StageCalling {
		t.Fatalf("stage = %s", got)
	}

	// No webhook ever arrives; an hour passes.
	f.clock = f.clock.Add(time.Hour)

	acted, err := f.orch.ExpireStalled(ctx, 50)
	if err != nil {
		t.Fatalf("ExpireStalled: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted = %d, want 1", acted)
	}
	// Attempt 1 timed out; a retry dial is queued.
	if got := f.stage(t, iv.ID); got != interviews.StageCalling {
		t.Fatalf("stage = %s, want calling retry", got)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", f.queue.Len())
	}

	// The sweep refreshed the dwell clock, so an immediate second sweep
	// leaves the interview alone.
	acted, err = f.orch.ExpireStalled(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if acted != 0 {
		t.Fatalf("second sweep acted = %d, want 0", acted)
	}

	// The sweep closed out the silent attempt, so the retry dial goes
	// through instead of seeing a line that looks busy forever.
	f.drain(t)
	if len(f.provider.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(f.provider.requests))
	}
	rows, err := f.attempts.ListByInterview(ctx, "t1", iv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Status != calls.StatusFailed {
		t.Fatalf("attempts = %+v", rows)
	}
}

func TestJobSLAExpiryFailsAttempt(t *testing.T) {
	f := newFixture(t)
	f.sttStub.results = []jobs.Result{{Status: jobs.StatusPending}}
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}

	// fetch_recording, then the submit message.
	msg, ok := f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindFetchRecording {
		t.Fatalf("expected fetch_recording, got %+v", msg)
	}
	if err := f.orch.ProcessRecording(ctx, msg); err != nil {
		t.Fatal(err)
	}
	msg, ok = f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindPollTranscription || msg.JobHandle != "" {
		t.Fatalf("expected submit message, got %+v", msg)
	}
	if err := f.orch.PollTranscription(ctx, msg); err != nil {
		t.Fatal(err)
	}

	// First poll: still pending, requeued.
	msg, ok = f.queue.ReceiveAny()
	if !ok || msg.JobHandle == "" {
		t.Fatalf("expected poll message, got %+v", msg)
	}
	if err := f.orch.PollTranscription(ctx, msg); err != nil {
		t.Fatal(err)
	}

	// SLA passes; the pending job is treated as a failed attempt and a fresh
	// submit is queued.
	f.clock = f.clock.Add(11 * time.Minute)
	msg, ok = f.queue.ReceiveAny()
	if !ok {
		t.Fatal("expected requeued poll message")
	}
	if err := f.orch.PollTranscription(ctx, msg); err != nil {
		t.Fatal(err)
	}

	after, _ := f.repo.GetByID(ctx, "t1", iv.ID)
	if after.Stage != interviews.StageTranscribing {
		t.Fatalf("stage = %s, want transcribing resubmit", after.Stage)
	}
	msg, ok = f.queue.ReceiveAny()
	if !ok || msg.Kind != queue.KindPollTranscription || msg.JobHandle != "" {
		t.Fatalf("expected fresh submit message, got %+v", msg)
	}
}

type gatedNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	events  []notify.Event
}

func (n *gatedNotifier) Notify(ctx context.Context, ev notify.Event) {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func TestSlowNotifierDoesNotBlockTransitions(t *testing.T) {
	f := newFixture(t)
	gate := &gatedNotifier{release: make(chan struct{})}
	f.orch.notifier = gate
	ctx := context.Background()

	iv := f.schedule(t)
	if _, err := f.consents.Consume(ctx, f.consentToken(t), true, "web", ""); err != nil {
		t.Fatal(err)
	}
	f.drain(t)
	if err := f.orch.HandleCallEvent(ctx, telephony.Event{ProviderCallID: "CA1", Status: "completed", DurationSeconds: 120}); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.HandleRecordingEvent(ctx, telephony.Event{ProviderCallID: "CA1", RecordingURL: "https://provider.local/rec/RE1"}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	// The pipeline finished while every notification is still parked on the
	// gate: delivery never ran under the interview lock.
	if got := f.stage(t, iv.ID); got != interviews.StageReportReady {
		t.Fatalf("stage = %s, want report_ready", got)
	}
	if err := f.orch.Cancel(ctx, "t1", iv.ID); !errors.Is(err, interviews.ErrStaleStage) {
		t.Fatalf("Cancel err = %v, want ErrStaleStage (lock must be free)", err)
	}

	close(gate.release)
	f.orch.notifyWG.Wait()

	gate.mu.Lock()
	defer gate.mu.Unlock()
	counts := map[string]int{}
	for _, ev := range gate.events {
		counts[ev.Type]++
	}
	if counts[notify.TypeConsentRequested] != 1 || counts[notify.TypeConsentDecided] != 1 || counts[notify.TypeReportReady] != 1 {
		t.Fatalf("delivered events = %+v", gate.events)
	}
}
