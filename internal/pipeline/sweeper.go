package pipeline

import (
	"context"
	"fmt"
	"time"

	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/queue"
	"prescreen-backend/internal/shared/telemetry"
)

// sweepStages are the stages the dwell timeout applies to. AwaitingConsent
// is deliberately absent: consent can arrive days later and is bounded by
// the token expiry instead.
var sweepStages = []interviews.Stage{
	interviews.StageConsentGranted,
	interviews.StageCalling,
	interviews.StageCallCompleted,
	interviews.StageTranscribing,
	interviews.StageTranscribed,
	interviews.StageAnalyzing,
	interviews.StageAnalyzed,
}

// ExpireStalled finds interviews that have sat in one stage past the dwell
// timeout and pushes each down its stage's normal failure or re-dispatch
// path. Returns how many interviews were acted on.
func (o *Orchestrator) ExpireStalled(ctx context.Context, limit int) (int, error) {
	cutoff := o.now().UTC().Add(-o.cfg.StageTimeout)
	stalled, err := o.repo.ListStalled(ctx, sweepStages, cutoff, limit)
	if err != nil {
		return 0, err
	}

	acted := 0
	for _, found := range stalled {
		if err := o.expireOne(ctx, found.TenantID, found.ID, cutoff); err != nil {
			telemetry.Error("stalled interview sweep failed", map[string]any{
				"interviewId": found.ID,
				"error":       err.Error(),
			})
			continue
		}
		acted++
	}
	return acted, nil
}

func (o *Orchestrator) expireOne(ctx context.Context, tenantID, id string, cutoff time.Time) error {
	unlock := o.locks.lock(id)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	// The interview may have moved on between the list and the lock.
	if !iv.StageEnteredAt.Before(cutoff) {
		return nil
	}

	telemetry.Warn("interview stalled", map[string]any{
		"tenant_id":   iv.TenantID,
		"interviewId": iv.ID,
		"stage":       string(iv.Stage),
		"entered_at":  iv.StageEnteredAt.Format(time.RFC3339),
	})

	switch iv.Stage {
	case interviews.StageCalling:
		// The provider never reported back for this attempt; close it out so
		// the retry dial is not blocked by a line that looks busy forever.
		o.failActiveAttempt(ctx, iv)
		return o.retryOrFailCall(ctx, iv, "call timed out")
	case interviews.StageCallCompleted:
		if iv.RecordingArtifactID == "" {
			return o.fail(ctx, iv, iv.Stage, interviews.StageCallFailed, "recording never arrived")
		}
		return o.redispatch(ctx, iv, queue.KindPollTranscription)
	case interviews.StageTranscribing:
		return o.transcriptionAttemptFailed(ctx, iv, "transcription timed out")
	case interviews.StageAnalyzing:
		return o.analysisAttemptFailed(ctx, iv, "analysis timed out")
	case interviews.StageConsentGranted:
		// Handoff message was lost; dispatch again.
		return o.redispatch(ctx, iv, queue.KindPlaceCall)
	case interviews.StageTranscribed:
		return o.redispatch(ctx, iv, queue.KindPollAnalysis)
	case interviews.StageAnalyzed:
		return o.redispatch(ctx, iv, queue.KindCompileReport)
	}
	return fmt.Errorf("unexpected stalled stage %s", iv.Stage)
}

// failActiveAttempt marks the interview's in-flight call attempt failed.
// Best effort; the attempt row mirrors provider state for operators.
func (o *Orchestrator) failActiveAttempt(ctx context.Context, iv interviews.Interview) {
	if iv.ProviderCallID == "" {
		return
	}
	attempt, err := o.attempts.GetByProviderCallID(ctx, iv.ProviderCallID)
	if err != nil || !attempt.Status.Active() {
		return
	}
	if err := o.attempts.UpdateStatus(ctx, attempt.ID, calls.StatusFailed, 0); err != nil {
		telemetry.Warn("stalled attempt status update failed", map[string]any{
			"attemptId": attempt.ID,
			"error":     err.Error(),
		})
	}
}

// redispatch refreshes the dwell clock and re-sends the stage's handoff
// message.
func (o *Orchestrator) redispatch(ctx context.Context, iv interviews.Interview, kind string) error {
	iv, err := o.advance(ctx, iv, iv.Stage, iv.Stage)
	if err != nil {
		return err
	}
	o.enqueue(ctx, queue.Message{
		Kind:        kind,
		InterviewID: iv.ID,
		TenantID:    iv.TenantID,
	})
	return nil
}
