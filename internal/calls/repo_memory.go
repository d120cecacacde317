package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Attempt
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Attempt)}
}

// Create stores a new call attempt.
func (r *MemoryRepo) Create(ctx context.Context, a Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[a.ID] = a
	return nil
}

// GetByProviderCallID returns the attempt owning a provider call id.
func (r *MemoryRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (Attempt, error) {
	if err := ctx.Err(); err != nil {
		return Attempt{}, err
	}
	if providerCallID == "" {
		return Attempt{}, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.data {
		if a.ProviderCallID == providerCallID {
			return a, nil
		}
	}
	return Attempt{}, ErrNotFound
}

// UpdateStatus records the provider status and duration for an attempt.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, durationSeconds int) error {
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
	a.DurationSeconds = durationSeconds
	a.UpdatedAt = time.Now().UTC()
	r.data[id] = a
	return nil
}

// ListByInterview returns an interview's attempts in dial order.
func (r *MemoryRepo) ListByInterview(ctx context.Context, tenantID, interviewID string) ([]Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Attempt
	for _, a := range r.data {
		if a.TenantID == tenantID && a.InterviewID == interviewID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
