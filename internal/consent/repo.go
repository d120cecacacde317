package consent

import "context"

// Repo defines persistence operations for consent records.
type Repo interface {
	Create(ctx context.Context, rec Record) error
	GetByToken(ctx context.Context, token string) (Record, error)
	LatestByCandidate(ctx context.Context, tenantID, candidateID string) (Record, error)
	SupersedePending(ctx context.Context, tenantID, candidateID string) error
	Update(ctx context.Context, rec Record) error
}
