package artifacts

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Artifact
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Artifact)}
}

// Create stores a new artifact record.
func (r *MemoryRepo) Create(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[a.ID] = a
	return nil
}

// GetByID returns an artifact by id, scoped to the tenant.
func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[id]
	if !ok || a.TenantID != tenantID {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

// UpdateStatus marks an artifact's storage state and content hash.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, sha256 string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	if sha256 != "" {
		a.SHA256 = sha256
	}
	r.data[id] = a
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
