package artifacts

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("artifact not found")

// Repo defines persistence operations for artifacts.
type Repo interface {
	Create(ctx context.Context, a Artifact) error
	GetByID(ctx context.Context, tenantID, id string) (Artifact, error)
	UpdateStatus(ctx context.Context, id string, status Status, sha256 string) error
}
