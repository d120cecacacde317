package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prescreen-backend/internal/artifacts"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/jobs"
	"prescreen-backend/internal/llm"
	"prescreen-backend/internal/notify"
	"prescreen-backend/internal/queue"
	"prescreen-backend/internal/recordings"
	"prescreen-backend/internal/reports"
	"prescreen-backend/internal/shared/metrics"
	"prescreen-backend/internal/stt"
	"prescreen-backend/internal/telephony"
)

// ProcessRecording downloads the call audio into object storage and hands
// off to transcription. A provider with no recording fails the interview;
// a short call that produced no media is not retried.
func (o *Orchestrator) ProcessRecording(ctx context.Context, msg queue.Message) error {
	unlock := o.locks.lock(msg.InterviewID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, msg.TenantID, msg.InterviewID)
	if err != nil {
		return err
	}
	if iv.Stage != interviews.StageCallCompleted {
		return nil
	}

	if iv.RecordingArtifactID == "" {
		art, err := o.retriever.Retrieve(ctx, iv.TenantID, iv.ID, msg.RecordingURL)
		if err != nil {
			switch {
			case errors.Is(err, recordings.ErrRecordingUnavailable):
				return o.fail(ctx, iv, interviews.StageCallCompleted, interviews.StageCallFailed, "recording unavailable")
			case errors.Is(err, telephony.ErrRecordingNotReady):
				// Media still processing at the provider; fetch again shortly.
				msg.DelaySeconds = int32(o.cfg.JobPollInterval / time.Second)
				o.enqueue(ctx, msg)
				return nil
			default:
				// Transient fetch or storage failure; the message redelivers.
				return err
			}
		}
		iv.RecordingArtifactID = art.ID
		iv, err = o.advance(ctx, iv, interviews.StageCallCompleted, interviews.StageCallCompleted)
		if err != nil {
			return err
		}
	}

	o.enqueue(ctx, queue.Message{
		Kind:        queue.KindPollTranscription,
		InterviewID: iv.ID,
		TenantID:    iv.TenantID,
	})
	return nil
}

// PollTranscription drives the transcription engine. A message without a job
// handle submits a new job; one with a handle polls it.
func (o *Orchestrator) PollTranscription(ctx context.Context, msg queue.Message) error {
	unlock := o.locks.lock(msg.InterviewID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, msg.TenantID, msg.InterviewID)
	if err != nil {
		return err
	}

	if msg.JobHandle == "" {
		if iv.Stage != interviews.StageCallCompleted && iv.Stage != interviews.StageTranscribing {
			return nil
		}
		return o.submitTranscription(ctx, iv, msg)
	}

	if iv.Stage != interviews.StageTranscribing {
		return nil
	}

	if o.pastSLA(msg.SubmittedAt) {
		return o.transcriptionAttemptFailed(ctx, iv, "transcription timed out")
	}

	res, err := o.sttEngine.Poll(ctx, msg.JobHandle)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			return o.transcriptionAttemptFailed(ctx, iv, "transcription job lost")
		}
		msg.DelaySeconds = int32(o.cfg.JobPollInterval / time.Second)
		o.enqueue(ctx, msg)
		return nil
	}

	switch res.Status {
	case jobs.StatusPending:
		msg.DelaySeconds = int32(o.cfg.JobPollInterval / time.Second)
		o.enqueue(ctx, msg)
		return nil
	case jobs.StatusFailed:
		return o.transcriptionAttemptFailed(ctx, iv, res.Reason)
	case jobs.StatusCompleted:
		art, err := o.store.SaveBytes(ctx, iv.TenantID, iv.ID, artifacts.KindTranscript, "transcript.json", "application/json", res.Output)
		if err != nil {
			return err
		}
		iv.TranscriptArtifactID = art.ID
		iv, err = o.advance(ctx, iv, interviews.StageTranscribing, interviews.StageTranscribed)
		if err != nil {
			return err
		}
		o.enqueue(ctx, queue.Message{
			Kind:        queue.KindPollAnalysis,
			InterviewID: iv.ID,
			TenantID:    iv.TenantID,
		})
		return nil
	}
	return fmt.Errorf("unknown job status %q", res.Status)
}

func (o *Orchestrator) submitTranscription(ctx context.Context, iv interviews.Interview, msg queue.Message) error {
	if iv.TranscribeAttempts >= o.cfg.MaxTranscribeAttempts {
		return o.fail(ctx, iv, iv.Stage, interviews.StageTranscriptionFailed,
			fmt.Sprintf("transcription failed after %d attempts", iv.TranscribeAttempts))
	}

	audio, _, err := o.store.LoadVerified(ctx, iv.TenantID, iv.RecordingArtifactID)
	if err != nil {
		if errors.Is(err, artifacts.ErrIntegrityMismatch) {
			return o.integrityFailure(ctx, iv, interviews.StageTranscriptionFailed, msg, "recording")
		}
		return err
	}

	handle, err := o.sttEngine.Submit(ctx, audio)
	iv.TranscribeAttempts++
	if err != nil {
		if iv.TranscribeAttempts >= o.cfg.MaxTranscribeAttempts {
			return o.fail(ctx, iv, iv.Stage, interviews.StageTranscriptionFailed,
				"transcription submit failed: "+err.Error())
		}
		iv, advErr := o.advance(ctx, iv, iv.Stage, interviews.StageTranscribing)
		if advErr != nil {
			return advErr
		}
		o.enqueue(ctx, queue.Message{
			Kind:         queue.KindPollTranscription,
			InterviewID:  iv.ID,
			TenantID:     iv.TenantID,
			DelaySeconds: o.backoffSeconds(iv.TranscribeAttempts),
		})
		return nil
	}

	iv, err = o.advance(ctx, iv, iv.Stage, interviews.StageTranscribing)
	if err != nil {
		return err
	}
	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindPollTranscription,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		JobHandle:    handle,
		SubmittedAt:  o.now().UTC().Format(time.RFC3339),
		DelaySeconds: int32(o.cfg.JobPollInterval / time.Second),
	})
	return nil
}

func (o *Orchestrator) transcriptionAttemptFailed(ctx context.Context, iv interviews.Interview, reason string) error {
	if iv.TranscribeAttempts >= o.cfg.MaxTranscribeAttempts {
		return o.fail(ctx, iv, interviews.StageTranscribing, interviews.StageTranscriptionFailed,
			fmt.Sprintf("%s (attempt %d of %d)", reason, iv.TranscribeAttempts, o.cfg.MaxTranscribeAttempts))
	}
	iv, err := o.advance(ctx, iv, interviews.StageTranscribing, interviews.StageTranscribing)
	if err != nil {
		return err
	}
	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindPollTranscription,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		DelaySeconds: o.backoffSeconds(iv.TranscribeAttempts),
	})
	return nil
}

// PollAnalysis drives the analysis engine, same shape as transcription.
func (o *Orchestrator) PollAnalysis(ctx context.Context, msg queue.Message) error {
	unlock := o.locks.lock(msg.InterviewID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, msg.TenantID, msg.InterviewID)
	if err != nil {
		return err
	}

	if msg.JobHandle == "" {
		if iv.Stage != interviews.StageTranscribed && iv.Stage != interviews.StageAnalyzing {
			return nil
		}
		return o.submitAnalysis(ctx, iv, msg)
	}

	if iv.Stage != interviews.StageAnalyzing {
		return nil
	}

	if o.pastSLA(msg.SubmittedAt) {
		return o.analysisAttemptFailed(ctx, iv, "analysis timed out")
	}

	res, err := o.llmEngine.Poll(ctx, msg.JobHandle)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			return o.analysisAttemptFailed(ctx, iv, "analysis job lost")
		}
		msg.DelaySeconds = int32(o.cfg.JobPollInterval / time.Second)
		o.enqueue(ctx, msg)
		return nil
	}

	switch res.Status {
	case jobs.StatusPending:
		msg.DelaySeconds = int32(o.cfg.JobPollInterval / time.Second)
		o.enqueue(ctx, msg)
		return nil
	case jobs.StatusFailed:
		return o.analysisAttemptFailed(ctx, iv, res.Reason)
	case jobs.StatusCompleted:
		art, err := o.store.SaveBytes(ctx, iv.TenantID, iv.ID, artifacts.KindAnalysis, "analysis.json", "application/json", res.Output)
		if err != nil {
			return err
		}
		iv.AnalysisArtifactID = art.ID
		iv, err = o.advance(ctx, iv, interviews.StageAnalyzing, interviews.StageAnalyzed)
		if err != nil {
			return err
		}
		o.enqueue(ctx, queue.Message{
			Kind:        queue.KindCompileReport,
			InterviewID: iv.ID,
			TenantID:    iv.TenantID,
		})
		return nil
	}
	return fmt.Errorf("unknown job status %q", res.Status)
}

func (o *Orchestrator) submitAnalysis(ctx context.Context, iv interviews.Interview, msg queue.Message) error {
	if iv.AnalyzeAttempts >= o.cfg.MaxAnalyzeAttempts {
		return o.fail(ctx, iv, iv.Stage, interviews.StageAnalysisFailed,
			fmt.Sprintf("analysis failed after %d attempts", iv.AnalyzeAttempts))
	}

	transcriptRaw, _, err := o.store.LoadVerified(ctx, iv.TenantID, iv.TranscriptArtifactID)
	if err != nil {
		if errors.Is(err, artifacts.ErrIntegrityMismatch) {
			return o.integrityFailure(ctx, iv, interviews.StageAnalysisFailed, msg, "transcript")
		}
		return err
	}
	var transcript stt.Transcript
	if err := json.Unmarshal(transcriptRaw, &transcript); err != nil {
		return o.fail(ctx, iv, iv.Stage, interviews.StageAnalysisFailed, "transcript artifact unreadable")
	}

	candidate, err := o.dir.Candidate(ctx, iv.TenantID, iv.CandidateID)
	if err != nil {
		return fmt.Errorf("candidate lookup: %w", err)
	}
	position, err := o.dir.Position(ctx, iv.TenantID, iv.PositionID)
	if err != nil {
		return fmt.Errorf("position lookup: %w", err)
	}

	input, err := llm.EncodeInput(llm.AnalysisInput{
		CandidateName:  candidate.Name,
		PositionTitle:  position.Title,
		SeniorityLevel: position.SeniorityLevel,
		RequiredSkills: position.RequiredSkills,
		Transcript:     transcript.Text,
	})
	if err != nil {
		return o.fail(ctx, iv, iv.Stage, interviews.StageAnalysisFailed, "analysis input invalid: "+err.Error())
	}

	handle, err := o.llmEngine.Submit(ctx, input)
	iv.AnalyzeAttempts++
	if err != nil {
		if iv.AnalyzeAttempts >= o.cfg.MaxAnalyzeAttempts {
			return o.fail(ctx, iv, iv.Stage, interviews.StageAnalysisFailed,
				"analysis submit failed: "+err.Error())
		}
		iv, advErr := o.advance(ctx, iv, iv.Stage, interviews.StageAnalyzing)
		if advErr != nil {
			return advErr
		}
		o.enqueue(ctx, queue.Message{
			Kind:         queue.KindPollAnalysis,
			InterviewID:  iv.ID,
			TenantID:     iv.TenantID,
			DelaySeconds: o.backoffSeconds(iv.AnalyzeAttempts),
		})
		return nil
	}

	iv, err = o.advance(ctx, iv, iv.Stage, interviews.StageAnalyzing)
	if err != nil {
		return err
	}
	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindPollAnalysis,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		JobHandle:    handle,
		SubmittedAt:  o.now().UTC().Format(time.RFC3339),
		DelaySeconds: int32(o.cfg.JobPollInterval / time.Second),
	})
	return nil
}

func (o *Orchestrator) analysisAttemptFailed(ctx context.Context, iv interviews.Interview, reason string) error {
	if iv.AnalyzeAttempts >= o.cfg.MaxAnalyzeAttempts {
		return o.fail(ctx, iv, interviews.StageAnalyzing, interviews.StageAnalysisFailed,
			fmt.Sprintf("%s (attempt %d of %d)", reason, iv.AnalyzeAttempts, o.cfg.MaxAnalyzeAttempts))
	}
	iv, err := o.advance(ctx, iv, interviews.StageAnalyzing, interviews.StageAnalyzing)
	if err != nil {
		return err
	}
	o.enqueue(ctx, queue.Message{
		Kind:         queue.KindPollAnalysis,
		InterviewID:  iv.ID,
		TenantID:     iv.TenantID,
		DelaySeconds: o.backoffSeconds(iv.AnalyzeAttempts),
	})
	return nil
}

// CompileReport assembles the final report. Also serves operator-requested
// regeneration, which loops ReportReady back onto itself.
func (o *Orchestrator) CompileReport(ctx context.Context, msg queue.Message) error {
	unlock := o.locks.lock(msg.InterviewID)
	defer unlock()

	iv, err := o.repo.GetByID(ctx, msg.TenantID, msg.InterviewID)
	if err != nil {
		return err
	}
	if iv.Stage != interviews.StageAnalyzed && iv.Stage != interviews.StageReportReady {
		return nil
	}
	first := iv.Stage == interviews.StageAnalyzed

	art, err := o.compiler.Compile(ctx, iv)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrIncompleteInputs):
			if !first {
				return err
			}
			return o.fail(ctx, iv, interviews.StageAnalyzed, interviews.StageAnalysisFailed, "report inputs incomplete")
		case errors.Is(err, artifacts.ErrIntegrityMismatch):
			if !first {
				return err
			}
			return o.integrityFailure(ctx, iv, interviews.StageAnalysisFailed, msg, "report input")
		default:
			// Transient storage failure; the message redelivers.
			return err
		}
	}

	iv.ReportArtifactID = art.ID
	if first {
		now := o.now().UTC()
		iv.CompletedAt = &now
	}
	iv, err = o.advance(ctx, iv, iv.Stage, interviews.StageReportReady)
	if err != nil {
		return err
	}

	if first {
		metrics.IncReportsReady()
		metrics.ObservePipelineDurationMs(float64(o.now().Sub(iv.CreatedAt)) / float64(time.Millisecond))
		o.notifyAsync(notify.Event{
			Type:             notify.TypeReportReady,
			TenantID:         iv.TenantID,
			InterviewID:      iv.ID,
			ReportArtifactID: art.ID,
		})
	}
	return nil
}

// integrityFailure applies the hash-mismatch policy: retry once with
// backoff, terminal on repeat.
func (o *Orchestrator) integrityFailure(ctx context.Context, iv interviews.Interview, failTo interviews.Stage, msg queue.Message, what string) error {
	iv.IntegrityFailures++
	if iv.IntegrityFailures >= 2 {
		return o.fail(ctx, iv, iv.Stage, failTo, what+" artifact failed integrity verification")
	}
	iv, err := o.advance(ctx, iv, iv.Stage, iv.Stage)
	if err != nil {
		return err
	}
	msg.DelaySeconds = o.backoffSeconds(iv.IntegrityFailures)
	o.enqueue(ctx, msg)
	return nil
}

// pastSLA reports whether a job submitted at the given RFC3339 time has
// exceeded the configured job SLA.
func (o *Orchestrator) pastSLA(submittedAt string) bool {
	if submittedAt == "" {
		return false
	}
	ts, err := time.Parse(time.RFC3339, submittedAt)
	if err != nil {
		return false
	}
	return o.now().Sub(ts) > o.cfg.JobSLA
}
