package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for dev and tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	candidates map[string]Candidate
	positions  map[string]Position
}

// NewMemoryDirectory constructs an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		candidates: make(map[string]Candidate),
		positions:  make(map[string]Position),
	}
}

// PutCandidate stores a candidate.
func (d *MemoryDirectory) PutCandidate(c Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidates[c.ID] = c
}

// PutPosition stores a position.
func (d *MemoryDirectory) PutPosition(p Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positions[p.ID] = p
}

// Candidate returns a candidate by id, scoped to the tenant.
func (d *MemoryDirectory) Candidate(ctx context.Context, tenantID, candidateID string) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.candidates[candidateID]
	if !ok || c.TenantID != tenantID {
		return Candidate{}, ErrNotFound
	}
	return c, nil
}

// Position returns a position by id, scoped to the tenant.
func (d *MemoryDirectory) Position(ctx context.Context, tenantID, positionID string) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.positions[positionID]
	if !ok || p.TenantID != tenantID {
		return Position{}, ErrNotFound
	}
	return p, nil
}

var _ Directory = (*MemoryDirectory)(nil)
