package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/queue"
	"prescreen-backend/internal/shared/metrics"
	"prescreen-backend/internal/shared/telemetry"
	"prescreen-backend/internal/telephony"
)

// PlaceCall dials the candidate. Valid from ConsentGranted (first attempt)
// and Calling (retry); anything else fails the consent guard.
func (o *Orchestrator) PlaceCall(ctx context.Context, msg queue.Message) error {
	unlock := o.locks.lock(msg.InterviewID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, msg.TenantID, msg.InterviewID)
	if err != nil {
		return err
	}
	if iv.Stage != interviews.StageConsentGranted && iv.Stage != interviews.StageCalling {
		return calls.ErrConsentRequired
	}

	// A redelivered dial message must not start a second call while the
	// current attempt is still on the line.
	existing, err := o.attempts.ListByInterview(ctx, iv.TenantID, iv.ID)
	if err != nil {
		return fmt.Errorf("list call attempts: %w", err)
	}
	for _, a := range existing {
		if a.Status.Active() {
			telemetry.Info("dial skipped, attempt in flight", map[string]any{
				"interviewId":    iv.ID,
				"attemptId":      a.ID,
				"providerCallId": a.ProviderCallID,
			})
			return nil
		}
	}

	// The consent may have expired or been superseded since it was granted.
	if _, err := o.consents.Require(ctx, iv.TenantID, iv.CandidateID); err != nil {
		if failErr := o.fail(ctx, iv, iv.Stage, interviews.StageCallFailed, "consent no longer valid: "+err.Error()); failErr != nil {
			return failErr
		}
		return fmt.Errorf("%w: %s", calls.ErrConsentRequired, err)
	}

	if iv.CallAttempts >= o.cfg.MaxCallAttempts {
		return o.fail(ctx, iv, iv.Stage, interviews.StageCallFailed,
			fmt.Sprintf("no successful call after %d attempts", iv.CallAttempts))
	}

	candidate, err := o.dir.Candidate(ctx, iv.TenantID, iv.CandidateID)
	if err != nil {
		return fmt.Errorf("candidate lookup: %w", err)
	}

	attemptNo := iv.CallAttempts + 1
	providerCallID, err := o.provider.Place(ctx, telephony.PlaceRequest{
		To:                candidate.Phone,
		InterviewID:       iv.ID,
		StatusCallback:    o.cfg.WebhookBaseURL + "/api/v1/webhooks/telephony/status",
		RecordingCallback: o.cfg.WebhookBaseURL + "/api/v1/webhooks/telephony/recording",
	})
	if err != nil {
		telemetry.Warn("place call failed", map[string]any{
			"interviewId": iv.ID,
			"attempt":     attemptNo,
			"error":       err.Error(),
		})
		iv.CallAttempts = attemptNo
		if attemptNo >= o.cfg.MaxCallAttempts {
			return o.fail(ctx, iv, iv.Stage, interviews.StageCallFailed,
				fmt.Sprintf("provider rejected call on attempt %d: %s", attemptNo, err))
		}
		iv, err = o.advance(ctx, iv, iv.Stage, interviews.StageCalling)
		if err != nil {
			return err
		}
		o.enqueue(ctx, queue.Message{
			Kind:         queue.KindPlaceCall,
			InterviewID:  iv.ID,
			TenantID:     iv.TenantID,
			DelaySeconds: o.backoffSeconds(attemptNo),
		})
		return nil
	}

	now := o.now().UTC()
	attempt := calls.Attempt{
		ID:             uuid.NewString(),
		TenantID:       iv.TenantID,
		InterviewID:    iv.ID,
		Number:         attemptNo,
		ProviderCallID: providerCallID,
		Status:         calls.StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("record call attempt: %w", err)
	}

	iv.ProviderCallID = providerCallID
	iv.CallAttempts = attemptNo
	if _, err := o.advance(ctx, iv, iv.Stage, interviews.StageCalling); err != nil {
		return err
	}
	metrics.IncCallsPlaced()
	return nil
}

// HandleCallEvent applies a verified provider status callback. Stale and
// duplicate events return ErrStaleStage, which the webhook layer acks.
func (o *Orchestrator) HandleCallEvent(ctx context.Context, ev telephony.Event) error {
	located, err := o.repo.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		return err
	}

	unlock := o.locks.lock(located.ID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, located.TenantID, located.ID)
	if err != nil {
		return err
	}

	o.recordAttemptStatus(ctx, ev)

	if !telephony.TerminalStatus(ev.Status) {
		return nil
	}
	if iv.Stage != interviews.StageCalling || iv.ProviderCallID != ev.ProviderCallID {
		return interviews.ErrStaleStage
	}

	if ev.Status == telephony.StatusCompleted {
		minSeconds := int(o.cfg.MinCallDuration.Seconds())
		if ev.DurationSeconds >= minSeconds {
			_, err := o.advance(ctx, iv, interviews.StageCalling, interviews.StageCallCompleted)
			return err
		}
		// Too short to be a real conversation; likely voicemail or an
		// accidental pickup.
		return o.retryOrFailCall(ctx, iv, fmt.Sprintf("call lasted %ds, below the %ds minimum", ev.DurationSeconds, minSeconds))
	}

	return o.retryOrFailCall(ctx, iv, "call ended "+ev.Status)
}

// HandleRecordingEvent queues the recording download once the provider has
// the media ready.
func (o *Orchestrator) HandleRecordingEvent(ctx context.Context, ev telephony.Event) error {
	located, err := o.repo.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		return err
	}

	unlock := o.locks.lock(located.ID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, located.TenantID, located.ID)
	if err != nil {
		return err
	}
	if iv.Stage == interviews.StageCalling && iv.ProviderCallID == ev.ProviderCallID {
		// Recording callback raced ahead of the completed status. Error so
		// the provider retries after the status lands.
		return fmt.Errorf("recording event before call completion")
	}
	if iv.Stage != interviews.StageCallCompleted {
		return interviews.ErrStaleStage
	}

	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindFetchRecording,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		RecordingURL: ev.RecordingURL,
	})
	return nil
}

// retryOrFailCall schedules a fresh call attempt with backoff, or gives up
// once the attempt budget is spent.
func (o *Orchestrator) retryOrFailCall(ctx context.Context, iv interviews.Interview, reason string) error {
	if iv.CallAttempts >= o.cfg.MaxCallAttempts {
		return o.fail(ctx, iv, interviews.StageCalling, interviews.StageCallFailed,
			fmt.Sprintf("%s (attempt %d of %d)", reason, iv.CallAttempts, o.cfg.MaxCallAttempts))
	}

	iv, err := o.advance(ctx, iv, interviews.StageCalling, interviews.StageCalling)
	if err != nil {
		return err
	}
	telemetry.Info("retrying call", map[string]any{
		"interviewId": iv.ID,
		"attempt":     iv.CallAttempts,
		"reason":      reason,
	})
	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindPlaceCall,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		DelaySeconds: o.backoffSeconds(iv.CallAttempts),
	})
	return nil
}

// recordAttemptStatus mirrors the provider status onto the call attempt row.
// Best effort; the interview row is the source of truth.
func (o *Orchestrator) recordAttemptStatus(ctx context.Context, ev telephony.Event) {
	attempt, err := o.attempts.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		return
	}
	status := calls.StatusFromProvider(ev.Status)
	if status == "" {
		return
	}
	if err := o.attempts.UpdateStatus(ctx, attempt.ID, status, ev.DurationSeconds); err != nil {
		telemetry.Warn("call attempt status update failed", map[string]any{
			"attemptId": attempt.ID,
			"error":     err.Error(),
		})
	}
}

var _ calls.EventSink = (*Orchestrator)(nil)
var _ interviews.Orchestrator = (*Orchestrator)(nil)
