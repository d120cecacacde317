package interviews

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Interview
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Interview)}
}

// Create stores a new interview.
func (r *MemoryRepo) Create(ctx context.Context, iv Interview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[iv.ID] = iv
	return nil
}

// GetByID returns an interview by id, scoped to the tenant.
func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	iv, ok := r.data[id]
	if !ok || iv.TenantID != tenantID {
		return Interview{}, ErrNotFound
	}
	return iv, nil
}

// GetByProviderCallID locates the interview owning a provider call.
func (r *MemoryRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	if providerCallID == "" {
		return Interview{}, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, iv := range r.data {
		if iv.ProviderCallID == providerCallID {
			return iv, nil
		}
	}
	return Interview{}, ErrNotFound
}

// GetByConsentID locates the interview gated by a consent record.
func (r *MemoryRepo) GetByConsentID(ctx context.Context, tenantID, consentID string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	if consentID == "" {
		return Interview{}, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, iv := range r.data {
		if iv.TenantID == tenantID && iv.ConsentID == consentID {
			return iv, nil
		}
	}
	return Interview{}, ErrNotFound
}

// UpdateFromStage persists iv only if the stored row is still in `from`.
func (r *MemoryRepo) UpdateFromStage(ctx context.Context, iv Interview, from Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.data[iv.ID]
	if !ok || current.TenantID != iv.TenantID {
		return ErrNotFound
	}
	if current.Stage != from {
		return ErrStaleStage
	}
	r.data[iv.ID] = iv
	return nil
}

// ListStalled returns interviews stuck in the given stages, oldest first.
func (r *MemoryRepo) ListStalled(ctx context.Context, stages []Stage, enteredBefore time.Time, limit int) ([]Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[Stage]struct{}, len(stages))
	for _, s := range stages {
		wanted[s] = struct{}{}
	}

	r.mu.RLock()
	var out []Interview
	for _, iv := range r.data {
		if _, ok := wanted[iv.Stage]; !ok {
			continue
		}
		if !iv.StageEnteredAt.Before(enteredBefore) {
			continue
		}
		out = append(out, iv)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StageEnteredAt.Before(out[j].StageEnteredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
