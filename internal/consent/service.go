package consent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prescreen-backend/internal/directory"
	"prescreen-backend/internal/shared/telemetry"
)

const defaultTTL = 168 * time.Hour

// DecisionHook is invoked after a consent decision is persisted. The pipeline
// registers one to advance or terminate the interview.
type DecisionHook func(ctx context.Context, rec Record, granted bool)

// Service enforces the consent gate: no call is placed without a valid,
// unexpired, granted consent record.
type Service struct {
	Repo       Repo
	Directory  directory.Directory
	TTL        time.Duration
	Now        func() time.Time
	OnDecision DecisionHook
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultTTL
}

// Issue creates a fresh single-use consent token for a candidate, invalidating
// any prior active token. The candidate must belong to the tenant.
func (s *Service) Issue(ctx context.Context, tenantID, candidateID string) (Record, error) {
	if _, err := s.Directory.Candidate(ctx, tenantID, candidateID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Record{}, ErrTenantMismatch
		}
		return Record{}, fmt.Errorf("lookup candidate: %w", err)
	}

	if err := s.Repo.SupersedePending(ctx, tenantID, candidateID); err != nil {
		return Record{}, fmt.Errorf("supersede pending consents: %w", err)
	}

	now := s.now()
	rec := Record{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		CandidateID: candidateID,
		Token:       newToken(),
		Status:      StatusPending,
		ExpiresAt:   now.Add(s.ttl()),
		CreatedAt:   now,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create consent: %w", err)
	}

	telemetry.Info("consent.issued", map[string]any{
		"tenant_id":    tenantID,
		"candidate_id": candidateID,
		"consent_id":   rec.ID,
		"expires_at":   rec.ExpiresAt.Format(time.RFC3339),
	})
	return rec, nil
}

// Require returns the candidate's granted consent record. It fails with
// ErrConsentMissing when none exists, ErrConsentExpired past expiry, and
// ErrConsentDenied when the candidate refused.
func (s *Service) Require(ctx context.Context, tenantID, candidateID string) (Record, error) {
	rec, err := s.Repo.LatestByCandidate(ctx, tenantID, candidateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrConsentMissing
		}
		return Record{}, fmt.Errorf("lookup consent: %w", err)
	}

	switch rec.Status {
	case StatusDenied:
		return Record{}, ErrConsentDenied
	case StatusGranted:
		if s.now().After(rec.ExpiresAt) {
			return Record{}, ErrConsentExpired
		}
		return rec, nil
	case StatusPending:
		if s.now().After(rec.ExpiresAt) {
			return Record{}, ErrConsentExpired
		}
		return Record{}, ErrConsentMissing
	default:
		return Record{}, ErrConsentMissing
	}
}

// Consume records the candidate's decision for a token. Repeating the same
// decision is a no-op; flipping the decision fails with
// ErrTokenAlreadyConsumed.
func (s *Service) Consume(ctx context.Context, token string, accept bool, channel, ipAddress string) (Record, error) {
	rec, err := s.Repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrConsentMissing
		}
		return Record{}, fmt.Errorf("lookup token: %w", err)
	}

	if rec.Status == StatusSuperseded {
		return Record{}, ErrConsentMissing
	}

	if rec.Decided() {
		granted := rec.Status == StatusGranted
		if granted == accept {
			return rec, nil
		}
		return Record{}, ErrTokenAlreadyConsumed
	}

	now := s.now()
	if now.After(rec.ExpiresAt) {
		return Record{}, ErrConsentExpired
	}

	if accept {
		rec.Status = StatusGranted
	} else {
		rec.Status = StatusDenied
	}
	rec.DecidedAt = &now
	rec.Channel = channel
	rec.IPAddress = ipAddress

	if err := s.Repo.Update(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("update consent: %w", err)
	}

	telemetry.Info("consent.decided", map[string]any{
		"tenant_id":    rec.TenantID,
		"candidate_id": rec.CandidateID,
		"consent_id":   rec.ID,
		"granted":      accept,
		"channel":      channel,
	})

	if s.OnDecision != nil {
		s.OnDecision(ctx, rec, accept)
	}
	return rec, nil
}

func newToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b[:])
}
