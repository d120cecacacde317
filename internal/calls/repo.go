package calls

import "context"

// Repo defines persistence operations for call attempts.
type Repo interface {
	Create(ctx context.Context, a Attempt) error
	GetByProviderCallID(ctx context.Context, providerCallID string) (Attempt, error)
	UpdateStatus(ctx context.Context, id string, status Status, durationSeconds int) error
	ListByInterview(ctx context.Context, tenantID, interviewID string) ([]Attempt, error)
}
