package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"prescreen-backend/internal/jobs"
)

func TestSubmitAndPoll(t *testing.T) {
	var polled int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			if got := r.FormValue("model"); got != "whisper-large-v3" {
				t.Errorf("model = %q", got)
			}
			if _, _, err := r.FormFile("file"); err != nil {
				t.Errorf("missing audio file part: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"id":"job-1","status":"pending"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/job-1":
			polled++
			if polled == 1 {
				w.Write([]byte(`{"id":"job-1","status":"processing"}`))
				return
			}
			w.Write([]byte(`{"id":"job-1","status":"completed","text":"Hello, thanks for taking the call.","language":"en","segments":[{"start":0,"end":2.4,"text":"Hello, thanks for taking the call."}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "key", "")
	if err != nil {
		t.Fatal(err)
	}

	handle, err := client.Submit(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "job-1" {
		t.Fatalf("handle = %q", handle)
	}

	res, err := client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusPending {
		t.Fatalf("first poll status = %s, want pending", res.Status)
	}

	res, err = client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusCompleted {
		t.Fatalf("second poll status = %s, want completed", res.Status)
	}

	var transcript Transcript
	if err := json.Unmarshal(res.Output, &transcript); err != nil {
		t.Fatalf("output parse: %v", err)
	}
	if transcript.Text == "" || len(transcript.Segments) != 1 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
}

func TestPollEmptyTranscriptFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"job-2","status":"completed","text":"   "}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}

	res, err := client.Poll(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed for empty transcript", res.Status)
	}
	if res.Reason != "empty transcript" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestPollUnknownJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Poll(context.Background(), "gone")
	if !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("err = %v, want ErrUnknownJob", err)
	}
}
