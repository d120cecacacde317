package consent

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new consent record.
func (r *PGRepo) Create(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO consents (
    id,
    tenant_id,
    candidate_id,
    token,
    status,
    expires_at,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.TenantID,
		rec.CandidateID,
		rec.Token,
		string(rec.Status),
		rec.ExpiresAt,
		rec.CreatedAt,
	)
	return err
}

// GetByToken returns the record holding the given token.
func (r *PGRepo) GetByToken(ctx context.Context, token string) (Record, error) {
	const query = `
SELECT id, tenant_id, candidate_id, token, status, expires_at, decided_at, channel, ip_address, created_at
FROM consents
WHERE token = $1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, token))
}

// LatestByCandidate returns the newest non-superseded record for a candidate.
// The seq tie-break keeps the result deterministic when created_at collides.
func (r *PGRepo) LatestByCandidate(ctx context.Context, tenantID, candidateID string) (Record, error) {
	const query = `
SELECT id, tenant_id, candidate_id, token, status, expires_at, decided_at, channel, ip_address, created_at
FROM consents
WHERE tenant_id = $1 AND candidate_id = $2 AND status <> 'superseded'
ORDER BY created_at DESC, seq DESC
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, tenantID, candidateID))
}

// SupersedePending invalidates all pending tokens for a candidate.
func (r *PGRepo) SupersedePending(ctx context.Context, tenantID, candidateID string) error {
	const query = `
UPDATE consents
SET status = 'superseded'
WHERE tenant_id = $1 AND candidate_id = $2 AND status = 'pending'`
	_, err := r.DB.ExecContext(ctx, query, tenantID, candidateID)
	return err
}

// Update stores the decision fields of a record.
func (r *PGRepo) Update(ctx context.Context, rec Record) error {
	const query = `
UPDATE consents
SET status = $1, decided_at = $2, channel = $3, ip_address = $4
WHERE id = $5 AND tenant_id = $6`
	res, err := r.DB.ExecContext(
		ctx,
		query,
		string(rec.Status),
		rec.DecidedAt,
		nullString(rec.Channel),
		nullString(rec.IPAddress),
		rec.ID,
		rec.TenantID,
	)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) scanOne(row *sql.Row) (Record, error) {
	var rec Record
	var status string
	var decidedAt sql.NullTime
	var channel sql.NullString
	var ip sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.CandidateID,
		&rec.Token,
		&status,
		&rec.ExpiresAt,
		&decidedAt,
		&channel,
		&ip,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Status = Status(status)
	if decidedAt.Valid {
		rec.DecidedAt = &decidedAt.Time
	}
	if channel.Valid {
		rec.Channel = channel.String
	}
	if ip.Valid {
		rec.IPAddress = ip.String
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
