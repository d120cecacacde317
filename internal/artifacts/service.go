package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"prescreen-backend/internal/shared/storage/object"
	"prescreen-backend/internal/shared/util"
)

// ErrIntegrityMismatch means stored bytes no longer hash to the value
// recorded when the artifact was written.
var ErrIntegrityMismatch = errors.New("artifact integrity mismatch")

// Service writes artifact bytes to object storage and records their hash, and
// verifies the hash again on every read.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, store object.ObjectStore) *Service {
	return &Service{Repo: repo, Store: store, Now: time.Now}
}

// StorageKey builds the canonical object key for an interview artifact.
func StorageKey(tenantID, interviewID string, kind Kind, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", tenantID, interviewID, kind, filename)
}

// SaveBytes stores data and records a ready artifact with its content hash.
func (s *Service) SaveBytes(ctx context.Context, tenantID, interviewID string, kind Kind, filename, contentType string, data []byte) (Artifact, error) {
	a := Artifact{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		InterviewID: interviewID,
		Kind:        kind,
		StorageKey:  StorageKey(tenantID, interviewID, kind, filename),
		SHA256:      util.HashBytes(data),
		Status:      StatusReady,
		CreatedAt:   s.Now().UTC(),
	}
	if _, err := s.Store.Put(ctx, a.StorageKey, contentType, bytes.NewReader(data)); err != nil {
		return Artifact{}, fmt.Errorf("store artifact %s: %w", a.StorageKey, err)
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// SaveStream stores a stream, hashing it as it passes through. Used for
// recordings, which are too large to buffer.
func (s *Service) SaveStream(ctx context.Context, tenantID, interviewID string, kind Kind, filename, contentType string, r io.Reader) (Artifact, error) {
	hasher := util.NewContentHasher()
	a := Artifact{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		InterviewID: interviewID,
		Kind:        kind,
		StorageKey:  StorageKey(tenantID, interviewID, kind, filename),
		Status:      StatusReady,
		CreatedAt:   s.Now().UTC(),
	}
	if _, err := s.Store.Put(ctx, a.StorageKey, contentType, hasher.Tee(r)); err != nil {
		return Artifact{}, fmt.Errorf("store artifact %s: %w", a.StorageKey, err)
	}
	a.SHA256 = hasher.Sum()
	if err := s.Repo.Create(ctx, a); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// LoadVerified reads an artifact's bytes and checks them against the
// recorded hash.
func (s *Service) LoadVerified(ctx context.Context, tenantID, id string) ([]byte, Artifact, error) {
	a, err := s.Repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, Artifact{}, err
	}
	if a.Status != StatusReady {
		return nil, a, fmt.Errorf("artifact %s is %s, not ready", a.ID, a.Status)
	}

	rc, err := s.Store.Open(ctx, a.StorageKey)
	if err != nil {
		return nil, a, fmt.Errorf("open artifact %s: %w", a.StorageKey, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, a, err
	}
	if a.SHA256 != "" && util.HashBytes(data) != a.SHA256 {
		return nil, a, ErrIntegrityMismatch
	}
	return data, a, nil
}
