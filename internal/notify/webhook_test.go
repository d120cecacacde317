package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestWebhookNotifierSignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Prescreen-Signature")
		gotTS = r.Header.Get("X-Prescreen-Timestamp")
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-secret")
	n.Now = func() time.Time { return time.Unix(1700000000, 0) }

	n.Notify(context.Background(), Event{
		Type:        TypeReportReady,
		TenantID:    "t1",
		InterviewID: "iv1",
	})

	if gotTS != "1700000000" {
		t.Fatalf("timestamp header = %q", gotTS)
	}
	ts, _ := strconv.ParseInt(gotTS, 10, 64)
	if want := Sign("hook-secret", ts, gotBody); gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}

	var ev Event
	if err := json.Unmarshal(gotBody, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeReportReady || ev.InterviewID != "iv1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWebhookNotifierSwallowsDeliveryFailure(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:0", "secret")
	// Must not panic or block the pipeline.
	n.Notify(context.Background(), Event{Type: TypeInterviewFailed, InterviewID: "iv1"})
}
