package artifacts

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new artifact record.
func (r *PGRepo) Create(ctx context.Context, a Artifact) error {
	const query = `
INSERT INTO artifacts (
    id,
    tenant_id,
    interview_id,
    kind,
    storage_key,
    sha256,
    status,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		a.ID,
		a.TenantID,
		a.InterviewID,
		string(a.Kind),
		a.StorageKey,
		a.SHA256,
		string(a.Status),
		a.CreatedAt,
	)
	return err
}

// GetByID returns an artifact by id, scoped to the tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, id string) (Artifact, error) {
	const query = `
SELECT id, tenant_id, interview_id, kind, storage_key, sha256, status, created_at
FROM artifacts
WHERE tenant_id = $1 AND id = $2`

	var a Artifact
	var kind, status string
	err := r.DB.QueryRowContext(ctx, query, tenantID, id).Scan(
		&a.ID,
		&a.TenantID,
		&a.InterviewID,
		&kind,
		&a.StorageKey,
		&a.SHA256,
		&status,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Artifact{}, ErrNotFound
		}
		return Artifact{}, err
	}
	a.Kind = Kind(kind)
	a.Status = Status(status)
	return a, nil
}

// UpdateStatus marks an artifact's storage state and content hash.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status, sha256 string) error {
	const query = `
UPDATE artifacts
SET status = $1,
    sha256 = CASE WHEN $2 = '' THEN sha256 ELSE $2 END
WHERE id = $3`

	res, err := r.DB.ExecContext(ctx, query, string(status), sha256, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
