// Package pipeline drives an interview from scheduling to its final report.
// The orchestrator is the only component that mutates interview state: every
// webhook, worker message, and operator action funnels through it, serialized
// per interview and guarded by a compare-and-swap on the stored stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

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
	"prescreen-backend/internal/shared/metrics"
	"prescreen-backend/internal/shared/telemetry"
	"prescreen-backend/internal/telephony"
)

// Config holds the pipeline's retry, backoff, and timeout knobs.
type Config struct {
	ConsentBaseURL string
	WebhookBaseURL string

	MaxCallAttempts       int
	MinCallDuration       time.Duration
	MaxTranscribeAttempts int
	MaxAnalyzeAttempts    int
	JobPollInterval       time.Duration
	JobSLA                time.Duration
	StageTimeout          time.Duration
	RetryBackoffBase      time.Duration
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Interviews interviews.Repo
	Attempts   calls.Repo
	Consents   *consent.Service
	Directory  directory.Directory
	Artifacts  *artifacts.Service
	Queue      queue.Client
	Provider   telephony.Provider
	Retriever  *recordings.Retriever
	STT        jobs.Engine
	Analysis   jobs.Engine
	Compiler   *reports.Compiler
	Notifier   notify.Notifier
	Config     Config
	Now        func() time.Time
}

// Orchestrator implements the interview state machine.
type Orchestrator struct {
	repo      interviews.Repo
	attempts  calls.Repo
	consents  *consent.Service
	dir       directory.Directory
	store     *artifacts.Service
	q         queue.Client
	provider  telephony.Provider
	retriever *recordings.Retriever
	sttEngine jobs.Engine
	llmEngine jobs.Engine
	compiler  *reports.Compiler
	notifier  notify.Notifier
	cfg       Config
	now       func() time.Time
	locks     *keyedMutex
	notifyWG  sync.WaitGroup
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Orchestrator{
		repo:      opts.Interviews,
		attempts:  opts.Attempts,
		consents:  opts.Consents,
		dir:       opts.Directory,
		store:     opts.Artifacts,
		q:         opts.Queue,
		provider:  opts.Provider,
		retriever: opts.Retriever,
		sttEngine: opts.STT,
		llmEngine: opts.Analysis,
		compiler:  opts.Compiler,
		notifier:  notifier,
		cfg:       opts.Config,
		now:       now,
		locks:     newKeyedMutex(),
	}
}

// Schedule creates an interview for a candidate/position pair, issues the
// consent token, and parks the interview until the candidate decides.
func (o *Orchestrator) Schedule(ctx context.Context, tenantID, candidateID, positionID string) (interviews.Interview, error) {
	if _, err := o.dir.Candidate(ctx, tenantID, candidateID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return interviews.Interview{}, fmt.Errorf("%w: unknown candidate", interviews.ErrInvalidInput)
		}
		return interviews.Interview{}, err
	}
	if _, err := o.dir.Position(ctx, tenantID, positionID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return interviews.Interview{}, fmt.Errorf("%w: unknown position", interviews.ErrInvalidInput)
		}
		return interviews.Interview{}, err
	}

	now := o.now().UTC()
	iv := interviews.Interview{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		CandidateID:    candidateID,
		PositionID:     positionID,
		Stage:          interviews.StageScheduled,
		CreatedAt:      now,
		StageEnteredAt: now,
	}
	if err := o.repo.Create(ctx, iv); err != nil {
		return interviews.Interview{}, fmt.Errorf("create interview: %w", err)
	}

	rec, err := o.consents.Issue(ctx, tenantID, candidateID)
	if err != nil {
		return interviews.Interview{}, fmt.Errorf("issue consent: %w", err)
	}

	iv.ConsentID = rec.ID
	iv, err = o.advance(ctx, iv, interviews.StageScheduled, interviews.StageAwaitingConsent)
	if err != nil {
		return interviews.Interview{}, err
	}

	metrics.IncInterviewsScheduled()
	o.notifyAsync(notify.Event{
		Type:        notify.TypeConsentRequested,
		TenantID:    tenantID,
		InterviewID: iv.ID,
		ConsentURL:  o.cfg.ConsentBaseURL + "/" + rec.Token,
	})
	return iv, nil
}

// Get returns an interview's current state.
func (o *Orchestrator) Get(ctx context.Context, tenantID, id string) (interviews.Interview, error) {
	return o.repo.GetByID(ctx, tenantID, id)
}

// Cancel marks an interview terminal. Callbacks that arrive afterwards are
// dropped as stale.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if iv.Stage.Terminal() {
		return interviews.ErrStaleStage
	}

	now := o.now().UTC()
	from := iv.Stage
	iv.Stage = interviews.StageCancelled
	iv.FailureReason = "cancelled by operator"
	iv.StageEnteredAt = now
	iv.CompletedAt = &now
	if err := o.repo.UpdateFromStage(ctx, iv, from); err != nil {
		return err
	}
	telemetry.Info("interview cancelled", map[string]any{
		"tenant_id":   tenantID,
		"interviewId": id,
		"from":        string(from),
	})
	return nil
}

// RegenerateReport queues a fresh report compilation for a finished
// interview. Only valid once the first report exists.
func (o *Orchestrator) RegenerateReport(ctx context.Context, tenantID, id string) error {
	iv, err := o.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if iv.Stage != interviews.StageReportReady {
		return interviews.ErrStaleStage
	}
	o.enqueue(ctx, queue.Message{
		Kind:        queue.KindCompileReport,
		InterviewID: iv.ID,
		TenantID:    iv.TenantID,
	})
	return nil
}

// OnConsentDecision advances or terminates the interview gated by the
// decided consent record. Registered as the consent service's decision hook.
func (o *Orchestrator) OnConsentDecision(ctx context.Context, rec consent.Record, granted bool) {
	iv, err := o.repo.GetByConsentID(ctx, rec.TenantID, rec.ID)
	if err != nil {
		if !errors.Is(err, interviews.ErrNotFound) {
			telemetry.Error("consent decision lookup failed", map[string]any{"consent_id": rec.ID, "error": err.Error()})
		}
		return
	}

	unlock := o.locks.lock(iv.ID)
	defer unlock()

	iv, err = o.repo.GetByID(ctx, iv.TenantID, iv.ID)
	if err != nil {
		return
	}
	if iv.Stage != interviews.StageAwaitingConsent {
		metrics.IncEventsDropped()
		return
	}

	o.notifyAsync(notify.Event{
		Type:        notify.TypeConsentDecided,
		TenantID:    iv.TenantID,
		InterviewID: iv.ID,
	})

	if !granted {
		if err := o.fail(ctx, iv, interviews.StageAwaitingConsent, interviews.StageConsentDenied, "candidate declined consent"); err != nil {
			telemetry.Error("consent denial transition failed", map[string]any{"interviewId": iv.ID, "error": err.Error()})
		}
		return
	}

	iv, err = o.advance(ctx, iv, interviews.StageAwaitingConsent, interviews.StageConsentGranted)
	if err != nil {
		telemetry.Error("consent grant transition failed", map[string]any{"interviewId": iv.ID, "error": err.Error()})
		return
	}
	o.enqueue(ctx, queue.Message{
		Kind:        queue.KindPlaceCall,
		InterviewID: iv.ID,
		TenantID:    iv.TenantID,
	})
}

// advance moves the interview along a legal edge, or refreshes the dwell
// clock when from == to.
func (o *Orchestrator) advance(ctx context.Context, iv interviews.Interview, from, to interviews.Stage) (interviews.Interview, error) {
	if from != to && !interviews.CanTransition(from, to) {
		return iv, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	iv.Stage = to
	iv.StageEnteredAt = o.now().UTC()
	if err := o.repo.UpdateFromStage(ctx, iv, from); err != nil {
		return iv, err
	}
	if from != to {
		telemetry.Info("stage transition", map[string]any{
			"tenant_id":        iv.TenantID,
			"interviewId":      iv.ID,
			"stage_transition": fmt.Sprintf("%s->%s", from, to),
		})
	}
	return iv, nil
}

// fail moves the interview to a terminal failure stage and records why.
func (o *Orchestrator) fail(ctx context.Context, iv interviews.Interview, from, to interviews.Stage, reason string) error {
	if !interviews.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	now := o.now().UTC()
	iv.Stage = to
	iv.FailureReason = reason
	iv.StageEnteredAt = now
	iv.CompletedAt = &now
	if err := o.repo.UpdateFromStage(ctx, iv, from); err != nil {
		return err
	}

	metrics.IncStageFailures()
	telemetry.Warn("interview failed", map[string]any{
		"tenant_id":        iv.TenantID,
		"interviewId":      iv.ID,
		"stage_transition": fmt.Sprintf("%s->%s", from, to),
		"reason":           reason,
	})
	o.notifyAsync(notify.Event{
		Type:        notify.TypeInterviewFailed,
		TenantID:    iv.TenantID,
		InterviewID: iv.ID,
		Reason:      reason,
	})
	return nil
}

// notifyAsync emits the event off the caller's goroutine. Transitions hold
// the per-interview lock, and notification delivery must never stretch one.
func (o *Orchestrator) notifyAsync(ev notify.Event) {
	o.notifyWG.Add(1)
	go func() {
		defer o.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		o.notifier.Notify(ctx, ev)
	}()
}

// enqueue sends a worker message, stamping bookkeeping fields. Send failures
// are logged; the stalled-stage sweeper re-dispatches lost handoffs.
func (o *Orchestrator) enqueue(ctx context.Context, msg queue.Message) {
	msg.EnqueuedAt = o.now().UTC().Format(time.RFC3339)
	msg.Version = 1
	if err := o.q.Send(ctx, msg); err != nil {
		telemetry.Error("queue send failed", map[string]any{
			"kind":        msg.Kind,
			"interviewId": msg.InterviewID,
			"error":       err.Error(),
		})
	}
}

// backoffSeconds returns the delay before retry n (1-based), doubling from
// the configured base and capped at the queue's maximum delay.
func (o *Orchestrator) backoffSeconds(attempt int) int32 {
	d := o.cfg.RetryBackoffBase
	if d <= 0 {
		d = 30 * time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 900*time.Second {
			d = 900 * time.Second
			break
		}
	}
	return int32(d / time.Second)
}
