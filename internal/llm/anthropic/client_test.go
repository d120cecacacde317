package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"prescreen-backend/internal/jobs"
	"prescreen-backend/internal/llm"
)

func encodedInput(t *testing.T) []byte {
	t.Helper()
	input, err := llm.EncodeInput(llm.AnalysisInput{
		PositionTitle:  "Backend Engineer",
		RequiredSkills: []string{"Go"},
		Transcript:     "Interviewer: tell me about your last role.",
	})
	if err != nil {
		t.Fatal(err)
	}
	return input
}

func TestSubmitCreatesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/batches" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Requests) != 1 || req.Requests[0].CustomID != "analysis" {
			t.Errorf("unexpected batch payload %+v", req)
		}
		if req.Requests[0].Params.Model != "claude-sonnet-4-5" {
			t.Errorf("model = %q", req.Requests[0].Params.Model)
		}

		w.Write([]byte(`{"id":"msgbatch_1","processing_status":"in_progress"}`))
	}))
	defer srv.Close()

	client, err := NewClient("key", "claude-sonnet-4-5", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	handle, err := client.Submit(context.Background(), encodedInput(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "msgbatch_1" {
		t.Fatalf("handle = %q", handle)
	}
}

func TestPollPendingThenCompleted(t *testing.T) {
	const analysisJSON = `{"overall_score":65,"recommendation":"review","summary":"ok","skill_assessments":[],"strengths":[],"concerns":[]}`

	var srv *httptest.Server
	var polls int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/messages/batches/msgbatch_1":
			polls++
			if polls == 1 {
				w.Write([]byte(`{"id":"msgbatch_1","processing_status":"in_progress"}`))
				return
			}
			w.Write([]byte(`{"id":"msgbatch_1","processing_status":"ended","results_url":"` + srv.URL + `/v1/messages/batches/msgbatch_1/results"}`))
		case "/v1/messages/batches/msgbatch_1/results":
			line, _ := json.Marshal(map[string]any{
				"custom_id": "analysis",
				"result": map[string]any{
					"type": "succeeded",
					"message": map[string]any{
						"content": []map[string]any{{"type": "text", "text": analysisJSON}},
					},
				},
			})
			w.Write(append(line, '\n'))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient("key", "claude-sonnet-4-5", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	res, err := client.Poll(context.Background(), "msgbatch_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusPending {
		t.Fatalf("first poll = %s, want pending", res.Status)
	}

	res, err = client.Poll(context.Background(), "msgbatch_1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusCompleted {
		t.Fatalf("second poll = %s, want completed", res.Status)
	}
	if string(res.Output) != analysisJSON {
		t.Fatalf("output = %s", res.Output)
	}
}

func TestPollRejectsInvalidScoringOutput(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/messages/batches/msgbatch_2":
			w.Write([]byte(`{"id":"msgbatch_2","processing_status":"ended","results_url":"` + srv.URL + `/v1/messages/batches/msgbatch_2/results"}`))
		case "/v1/messages/batches/msgbatch_2/results":
			line, _ := json.Marshal(map[string]any{
				"custom_id": "analysis",
				"result": map[string]any{
					"type": "succeeded",
					"message": map[string]any{
						"content": []map[string]any{{"type": "text", "text": "I think the candidate is strong."}},
					},
				},
			})
			w.Write(append(line, '\n'))
		}
	}))
	defer srv.Close()

	client, err := NewClient("key", "claude-sonnet-4-5", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	res, err := client.Poll(context.Background(), "msgbatch_2")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed for non-JSON output", res.Status)
	}
}
