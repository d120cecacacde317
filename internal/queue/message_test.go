package queue

import (
	"context"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		Kind:         KindPollTranscription,
		InterviewID:  "iv-1",
		TenantID:     "t1",
		JobHandle:    "job-42",
		SubmittedAt:  "2025-06-02T09:00:00Z",
		EnqueuedAt:   "2025-06-02T09:00:01Z",
		DelaySeconds: 30,
		Version:      1,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded != msg {
		t.Fatalf("decoded = %+v, want %+v", decoded, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{nope")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMemoryClientHonorsDelay(t *testing.T) {
	clock := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	client := NewMemoryClientAt(func() time.Time { return clock })

	if err := client.Send(context.Background(), Message{Kind: KindPlaceCall, InterviewID: "iv-1", DelaySeconds: 60}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := client.Receive(); ok {
		t.Fatal("delayed message visible early")
	}

	clock = clock.Add(61 * time.Second)
	msg, ok := client.Receive()
	if !ok {
		t.Fatal("message not visible after delay")
	}
	if msg.InterviewID != "iv-1" {
		t.Fatalf("msg = %+v", msg)
	}
	if client.Len() != 0 {
		t.Fatalf("len = %d", client.Len())
	}
}

func TestMemoryClientFIFOAcrossVisible(t *testing.T) {
	client := NewMemoryClient()
	for _, id := range []string{"a", "b", "c"} {
		if err := client.Send(context.Background(), Message{Kind: KindPlaceCall, InterviewID: id}); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		msg, ok := client.Receive()
		if !ok || msg.InterviewID != want {
			t.Fatalf("got %+v, want %s", msg, want)
		}
	}
}
