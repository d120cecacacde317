package directory

import (
	"context"
	"errors"
)

// Candidate is the slice of candidate data the pipeline needs. Candidate CRUD
// lives outside this core.
type Candidate struct {
	ID       string
	TenantID string
	Name     string
	Phone    string
}

// Position is the slice of position data fed into analysis and reports.
type Position struct {
	ID             string
	TenantID       string
	Title          string
	SeniorityLevel string
	RequiredSkills []string
}

var ErrNotFound = errors.New("not found")

// Directory is the read-only collaborator for candidate and position lookups.
// Every lookup is tenant-scoped; a record from another tenant is ErrNotFound.
type Directory interface {
	Candidate(ctx context.Context, tenantID, candidateID string) (Candidate, error)
	Position(ctx context.Context, tenantID, positionID string) (Position, error)
}
