package interviews

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres. UpdateFromStage relies on a
// conditional UPDATE so the stage check and the write are one atomic
// statement.
type PGRepo struct {
	DB *sql.DB
}

const interviewColumns = `
id, tenant_id, candidate_id, position_id, stage, consent_id, provider_call_id,
recording_artifact, transcript_artifact, analysis_artifact, report_artifact,
call_attempts, transcribe_attempts, analyze_attempts, integrity_failures,
failure_reason, created_at, stage_entered_at, completed_at`

// Create inserts a new interview.
func (r *PGRepo) Create(ctx context.Context, iv Interview) error {
	const query = `
INSERT INTO interviews (
    id,
    tenant_id,
    candidate_id,
    position_id,
    stage,
    consent_id,
    created_at,
    stage_entered_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		iv.ID,
		iv.TenantID,
		iv.CandidateID,
		iv.PositionID,
		string(iv.Stage),
		nullString(iv.ConsentID),
		iv.CreatedAt,
		iv.StageEnteredAt,
	)
	return err
}

// GetByID returns an interview by id, scoped to the tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, id string) (Interview, error) {
	query := `SELECT ` + interviewColumns + `
FROM interviews
WHERE tenant_id = $1 AND id = $2`
	return scanInterview(r.DB.QueryRowContext(ctx, query, tenantID, id))
}

// GetByProviderCallID locates the interview owning a provider call.
func (r *PGRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (Interview, error) {
	if strings.TrimSpace(providerCallID) == "" {
		return Interview{}, ErrNotFound
	}
	query := `SELECT ` + interviewColumns + `
FROM interviews
WHERE provider_call_id = $1`
	return scanInterview(r.DB.QueryRowContext(ctx, query, providerCallID))
}

// GetByConsentID locates the interview gated by a consent record.
func (r *PGRepo) GetByConsentID(ctx context.Context, tenantID, consentID string) (Interview, error) {
	if strings.TrimSpace(consentID) == "" {
		return Interview{}, ErrNotFound
	}
	query := `SELECT ` + interviewColumns + `
FROM interviews
WHERE tenant_id = $1 AND consent_id = $2`
	return scanInterview(r.DB.QueryRowContext(ctx, query, tenantID, consentID))
}

// UpdateFromStage persists iv only if the stored row is still in `from`.
func (r *PGRepo) UpdateFromStage(ctx context.Context, iv Interview, from Stage) error {
	const query = `
UPDATE interviews
SET stage = $1,
    consent_id = $2,
    provider_call_id = $3,
    recording_artifact = $4,
    transcript_artifact = $5,
    analysis_artifact = $6,
    report_artifact = $7,
    call_attempts = $8,
    transcribe_attempts = $9,
    analyze_attempts = $10,
    integrity_failures = $11,
    failure_reason = $12,
    stage_entered_at = $13,
    completed_at = $14
WHERE tenant_id = $15 AND id = $16 AND stage = $17`

	var completedAt sql.NullTime
	if iv.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *iv.CompletedAt, Valid: true}
	}

	res, err := r.DB.ExecContext(
		ctx,
		query,
		string(iv.Stage),
		nullString(iv.ConsentID),
		nullString(iv.ProviderCallID),
		nullString(iv.RecordingArtifactID),
		nullString(iv.TranscriptArtifactID),
		nullString(iv.AnalysisArtifactID),
		nullString(iv.ReportArtifactID),
		iv.CallAttempts,
		iv.TranscribeAttempts,
		iv.AnalyzeAttempts,
		iv.IntegrityFailures,
		iv.FailureReason,
		iv.StageEnteredAt,
		completedAt,
		iv.TenantID,
		iv.ID,
		string(from),
	)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Either gone or already advanced; distinguish for callers.
		if _, getErr := r.GetByID(ctx, iv.TenantID, iv.ID); getErr != nil {
			return getErr
		}
		return ErrStaleStage
	}
	return nil
}

// ListStalled returns interviews stuck in the given stages, oldest first.
func (r *PGRepo) ListStalled(ctx context.Context, stages []Stage, enteredBefore time.Time, limit int) ([]Interview, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}

	query := `SELECT ` + interviewColumns + `
FROM interviews
WHERE stage = ANY($1) AND stage_entered_at < $2
ORDER BY stage_entered_at ASC
LIMIT $3`

	rows, err := r.DB.QueryContext(ctx, query, names, enteredBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interview
	for rows.Next() {
		iv, err := scanInterviewRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row *sql.Row) (Interview, error) {
	iv, err := scanInterviewRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Interview{}, ErrNotFound
		}
		return Interview{}, err
	}
	return iv, nil
}

func scanInterviewRow(row rowScanner) (Interview, error) {
	var iv Interview
	var stage string
	var consentID, providerCallID sql.NullString
	var recording, transcript, analysis, report sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&iv.ID,
		&iv.TenantID,
		&iv.CandidateID,
		&iv.PositionID,
		&stage,
		&consentID,
		&providerCallID,
		&recording,
		&transcript,
		&analysis,
		&report,
		&iv.CallAttempts,
		&iv.TranscribeAttempts,
		&iv.AnalyzeAttempts,
		&iv.IntegrityFailures,
		&iv.FailureReason,
		&iv.CreatedAt,
		&iv.StageEnteredAt,
		&completedAt,
	)
	if err != nil {
		return Interview{}, err
	}
	iv.Stage = Stage(stage)
	if consentID.Valid {
		iv.ConsentID = consentID.String
	}
	if providerCallID.Valid {
		iv.ProviderCallID = providerCallID.String
	}
	if recording.Valid {
		iv.RecordingArtifactID = recording.String
	}
	if transcript.Valid {
		iv.TranscriptArtifactID = transcript.String
	}
	if analysis.Valid {
		iv.AnalysisArtifactID = analysis.String
	}
	if report.Valid {
		iv.ReportArtifactID = report.String
	}
	if completedAt.Valid {
		iv.CompletedAt = &completedAt.Time
	}
	return iv, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
