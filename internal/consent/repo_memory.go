package consent

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo. Records carry an
// insertion sequence so "latest" is deterministic even when timestamps tie.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Record
	byToken map[string]string // token -> id
	seq     map[string]uint64 // id -> insertion order
	nextSeq uint64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Record),
		byToken: make(map[string]string),
		seq:     make(map[string]uint64),
	}
}

// Create stores a new consent record.
func (r *MemoryRepo) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	r.byID[rec.ID] = rec
	r.byToken[rec.Token] = rec.ID
	r.seq[rec.ID] = r.nextSeq
	return nil
}

// GetByToken returns the record holding the given token.
func (r *MemoryRepo) GetByToken(ctx context.Context, token string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r.byID[id], nil
}

// LatestByCandidate returns the most recently created record for a candidate.
// Ties on CreatedAt resolve to the later insertion, never map order.
func (r *MemoryRepo) LatestByCandidate(ctx context.Context, tenantID, candidateID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest Record
	var latestSeq uint64
	found := false
	for _, rec := range r.byID {
		if rec.TenantID != tenantID || rec.CandidateID != candidateID {
			continue
		}
		if rec.Status == StatusSuperseded {
			continue
		}
		newer := rec.CreatedAt.After(latest.CreatedAt) ||
			(rec.CreatedAt.Equal(latest.CreatedAt) && r.seq[rec.ID] > latestSeq)
		if !found || newer {
			latest = rec
			latestSeq = r.seq[rec.ID]
			found = true
		}
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return latest, nil
}

// SupersedePending invalidates all pending tokens for a candidate.
func (r *MemoryRepo) SupersedePending(ctx context.Context, tenantID, candidateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.byID {
		if rec.TenantID == tenantID && rec.CandidateID == candidateID && rec.Status == StatusPending {
			rec.Status = StatusSuperseded
			r.byID[id] = rec
		}
	}
	return nil
}

// Update overwrites an existing record.
func (r *MemoryRepo) Update(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[rec.ID]; !ok {
		return ErrNotFound
	}
	r.byID[rec.ID] = rec
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
