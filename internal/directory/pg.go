package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGDirectory implements Directory using Postgres.
type PGDirectory struct {
	DB *sql.DB
}

// Candidate returns a candidate by id, scoped to the tenant.
func (d *PGDirectory) Candidate(ctx context.Context, tenantID, candidateID string) (Candidate, error) {
	const query = `
SELECT id, tenant_id, name, phone
FROM candidates
WHERE tenant_id = $1 AND id = $2`
	var c Candidate
	err := d.DB.QueryRowContext(ctx, query, tenantID, candidateID).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Candidate{}, ErrNotFound
		}
		return Candidate{}, err
	}
	return c, nil
}

// Position returns a position by id, scoped to the tenant.
func (d *PGDirectory) Position(ctx context.Context, tenantID, positionID string) (Position, error) {
	const query = `
SELECT id, tenant_id, title, seniority_level, required_skills
FROM positions
WHERE tenant_id = $1 AND id = $2`
	var p Position
	var skillsRaw []byte
	err := d.DB.QueryRowContext(ctx, query, tenantID, positionID).Scan(&p.ID, &p.TenantID, &p.Title, &p.SeniorityLevel, &skillsRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, ErrNotFound
		}
		return Position{}, err
	}
	if len(skillsRaw) > 0 {
		if err := json.Unmarshal(skillsRaw, &p.RequiredSkills); err != nil {
			return Position{}, err
		}
	}
	return p, nil
}

var _ Directory = (*PGDirectory)(nil)
