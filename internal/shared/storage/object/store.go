package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving binary artifacts.
// Storage keys are chosen by callers and are always prefixed with the owning
// tenant id.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
