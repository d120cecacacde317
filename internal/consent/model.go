package consent

import "time"

// Status is the lifecycle state of a consent record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGranted    Status = "granted"
	StatusDenied     Status = "denied"
	StatusSuperseded Status = "superseded"
)

// Record is one consent request issued to a candidate. At most one active
// (pending, unexpired) token exists per candidate; issuing a new one
// supersedes the rest. A record is decided exactly once.
type Record struct {
	ID          string
	TenantID    string
	CandidateID string
	Token       string
	Status      Status
	ExpiresAt   time.Time
	DecidedAt   *time.Time
	Channel     string
	IPAddress   string
	CreatedAt   time.Time
}

// Active reports whether the record's token can still be consumed.
func (r Record) Active(now time.Time) bool {
	return r.Status == StatusPending && now.Before(r.ExpiresAt)
}

// Decided reports whether the candidate has made a decision on this record.
func (r Record) Decided() bool {
	return r.Status == StatusGranted || r.Status == StatusDenied
}
