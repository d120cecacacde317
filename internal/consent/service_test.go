package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"prescreen-backend/internal/directory"
)

func newTestService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	clock := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	dir := directory.NewMemoryDirectory()
	dir.PutCandidate(directory.Candidate{ID: "c1", TenantID: "t1", Name: "Sam Ortiz", Phone: "+15551112222"})

	svc := &Service{
		Repo:      NewMemoryRepo(),
		Directory: dir,
		TTL:       168 * time.Hour,
		Now:       func() time.Time { return clock },
	}
	return svc, &clock
}

func TestIssueAndGrant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.Status != StatusPending || rec.Token == "" {
		t.Fatalf("issued record = %+v", rec)
	}

	decided, err := svc.Consume(ctx, rec.Token, true, "web", "203.0.113.9")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if decided.Status != StatusGranted || decided.DecidedAt == nil {
		t.Fatalf("decided record = %+v", decided)
	}
	if decided.Channel != "web" || decided.IPAddress != "203.0.113.9" {
		t.Fatalf("audit fields = %q %q", decided.Channel, decided.IPAddress)
	}

	if _, err := svc.Require(ctx, "t1", "c1"); err != nil {
		t.Fatalf("Require after grant: %v", err)
	}
}

func TestConsumeIsIdempotentPerDecision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, rec.Token, true, "web", ""); err != nil {
		t.Fatal(err)
	}

	// Repeating the same decision is a no-op.
	again, err := svc.Consume(ctx, rec.Token, true, "web", "")
	if err != nil {
		t.Fatalf("repeat Consume: %v", err)
	}
	if again.Status != StatusGranted {
		t.Fatalf("status = %s", again.Status)
	}

	// Flipping the decision is rejected.
	if _, err := svc.Consume(ctx, rec.Token, false, "web", ""); !errors.Is(err, ErrTokenAlreadyConsumed) {
		t.Fatalf("flip err = %v, want ErrTokenAlreadyConsumed", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}

	*clock = clock.Add(169 * time.Hour)
	if _, err := svc.Consume(ctx, rec.Token, true, "web", ""); !errors.Is(err, ErrConsentExpired) {
		t.Fatalf("err = %v, want ErrConsentExpired", err)
	}
}

func TestIssueSupersedesPendingToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Consume(ctx, first.Token, true, "web", ""); !errors.Is(err, ErrConsentMissing) {
		t.Fatalf("superseded token err = %v, want ErrConsentMissing", err)
	}
	if _, err := svc.Consume(ctx, second.Token, true, "web", ""); err != nil {
		t.Fatalf("active token: %v", err)
	}
}

func TestIssueRejectsForeignCandidate(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Issue(context.Background(), "t2", "c1"); !errors.Is(err, ErrTenantMismatch) {
		t.Fatalf("err = %v, want ErrTenantMismatch", err)
	}
}

func TestRequire(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Require(ctx, "t1", "c1"); !errors.Is(err, ErrConsentMissing) {
		t.Fatalf("no record err = %v, want ErrConsentMissing", err)
	}

	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Require(ctx, "t1", "c1"); !errors.Is(err, ErrConsentMissing) {
		t.Fatalf("pending err = %v, want ErrConsentMissing", err)
	}

	if _, err := svc.Consume(ctx, rec.Token, false, "web", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Require(ctx, "t1", "c1"); !errors.Is(err, ErrConsentDenied) {
		t.Fatalf("denied err = %v, want ErrConsentDenied", err)
	}

	// Fresh grant, then let it age out.
	rec, err = svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, rec.Token, true, "web", ""); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(200 * time.Hour)
	if _, err := svc.Require(ctx, "t1", "c1"); !errors.Is(err, ErrConsentExpired) {
		t.Fatalf("aged grant err = %v, want ErrConsentExpired", err)
	}
}

func TestRequireResolvesReissuedConsentDeterministically(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// The clock is frozen, so every record here shares one created_at. The
	// newest decision must still win, not whichever record a map yields.
	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, rec.Token, false, "web", ""); err != nil {
		t.Fatal(err)
	}

	reissued, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, reissued.Token, true, "web", ""); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Require(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("Require after re-grant: %v", err)
	}
	if got.ID != reissued.ID {
		t.Fatalf("Require returned %s, want the re-issued record %s", got.ID, reissued.ID)
	}

	// The mirror image: a later denial overrides the earlier grant.
	revoked, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, revoked.Token, false, "web", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Require(ctx, "t1", "c1"); !errors.Is(err, ErrConsentDenied) {
		t.Fatalf("err = %v, want ErrConsentDenied", err)
	}
}

func TestDecisionHookFires(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var hookRec Record
	var hookGranted bool
	calls := 0
	svc.OnDecision = func(ctx context.Context, rec Record, granted bool) {
		calls++
		hookRec = rec
		hookGranted = granted
	}

	rec, err := svc.Issue(ctx, "t1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, rec.Token, true, "web", ""); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || !hookGranted || hookRec.ID != rec.ID {
		t.Fatalf("hook calls=%d granted=%v rec=%+v", calls, hookGranted, hookRec)
	}

	// The repeat no-op must not refire the hook.
	if _, err := svc.Consume(ctx, rec.Token, true, "web", ""); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("hook refired, calls=%d", calls)
	}
}
