package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new call attempt.
func (r *PGRepo) Create(ctx context.Context, a Attempt) error {
	const query = `
INSERT INTO call_attempts (
    id,
    tenant_id,
    interview_id,
    attempt_number,
    provider_call_id,
    status,
    duration_seconds,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		a.ID,
		a.TenantID,
		a.InterviewID,
		a.Number,
		a.ProviderCallID,
		string(a.Status),
		a.DurationSeconds,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

// GetByProviderCallID returns the attempt owning a provider call id.
func (r *PGRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (Attempt, error) {
	if providerCallID == "" {
		return Attempt{}, ErrNotFound
	}
	const query = `
SELECT id, tenant_id, interview_id, attempt_number, provider_call_id, status, duration_seconds, created_at, updated_at
FROM call_attempts
WHERE provider_call_id = $1`

	var a Attempt
	var status string
	err := r.DB.QueryRowContext(ctx, query, providerCallID).Scan(
		&a.ID,
		&a.TenantID,
		&a.InterviewID,
		&a.Number,
		&a.ProviderCallID,
		&status,
		&a.DurationSeconds,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	a.Status = Status(status)
	return a, nil
}

// UpdateStatus records the provider status and duration for an attempt.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status, durationSeconds int) error {
	const query = `
UPDATE call_attempts
SET status = $1, duration_seconds = $2, updated_at = $3
WHERE id = $4`

	res, err := r.DB.ExecContext(ctx, query, string(status), durationSeconds, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByInterview returns an interview's attempts in dial order.
func (r *PGRepo) ListByInterview(ctx context.Context, tenantID, interviewID string) ([]Attempt, error) {
	const query = `
SELECT id, tenant_id, interview_id, attempt_number, provider_call_id, status, duration_seconds, created_at, updated_at
FROM call_attempts
WHERE tenant_id = $1 AND interview_id = $2
ORDER BY attempt_number ASC`

	rows, err := r.DB.QueryContext(ctx, query, tenantID, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.InterviewID,
			&a.Number,
			&a.ProviderCallID,
			&status,
			&a.DurationSeconds,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
