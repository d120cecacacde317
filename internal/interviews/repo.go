package interviews

import (
	"context"
	"time"
)

// Repo defines persistence operations for interviews. All reads are
// tenant-scoped except GetByProviderCallID, which serves signed provider
// webhooks that carry no tenant.
type Repo interface {
	Create(ctx context.Context, iv Interview) error
	GetByID(ctx context.Context, tenantID, id string) (Interview, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (Interview, error)
	GetByConsentID(ctx context.Context, tenantID, consentID string) (Interview, error)
	// UpdateFromStage persists iv only if the stored row is still in the
	// given stage; otherwise it returns ErrStaleStage and changes nothing.
	UpdateFromStage(ctx context.Context, iv Interview, from Stage) error
	// ListStalled returns interviews sitting in one of the given stages since
	// before the cutoff, oldest first.
	ListStalled(ctx context.Context, stages []Stage, enteredBefore time.Time, limit int) ([]Interview, error)
}
