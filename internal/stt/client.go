package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"prescreen-backend/internal/jobs"
)

// Client implements jobs.Engine against an asynchronous transcription
// service. Submit uploads the call audio; Poll reads the job until the
// service reports a transcript or a failure.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a transcription client.
func NewClient(baseURL, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("STT_BASE_URL is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "whisper-large-v3"
	}
	timeout := 60 * time.Second
	if raw := strings.TrimSpace(os.Getenv("STT_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type submitResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcript is the engine output stored as the transcript artifact.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is one timed span of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Submit uploads audio bytes and returns the transcription job id.
func (c *Client) Submit(ctx context.Context, input []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(input); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("stt submit: status %d: %s", resp.StatusCode, truncate(raw))
	}

	var parsed submitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("stt submit response parse: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("stt submit response missing job id")
	}
	return parsed.ID, nil
}

// Poll reads the transcription job state. A completed job with an empty
// transcript is reported as failed; there is nothing to analyze.
func (c *Client) Poll(ctx context.Context, handle string) (jobs.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transcriptions/"+handle, nil)
	if err != nil {
		return jobs.Result{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("stt poll: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return jobs.Result{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return jobs.Result{}, jobs.ErrUnknownJob
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return jobs.Result{}, fmt.Errorf("stt poll: status %d: %s", resp.StatusCode, truncate(raw))
	}

	var parsed jobResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return jobs.Result{}, fmt.Errorf("stt poll response parse: %w", err)
	}

	switch parsed.Status {
	case "pending", "queued", "processing":
		return jobs.Result{Status: jobs.StatusPending}, nil
	case "failed":
		reason := parsed.Error
		if reason == "" {
			reason = "transcription failed"
		}
		return jobs.Result{Status: jobs.StatusFailed, Reason: reason}, nil
	case "completed":
		if strings.TrimSpace(parsed.Text) == "" {
			return jobs.Result{Status: jobs.StatusFailed, Reason: "empty transcript"}, nil
		}
		transcript := Transcript{Text: parsed.Text, Language: parsed.Language}
		for _, seg := range parsed.Segments {
			transcript.Segments = append(transcript.Segments, Segment(seg))
		}
		output, err := json.Marshal(transcript)
		if err != nil {
			return jobs.Result{}, err
		}
		return jobs.Result{Status: jobs.StatusCompleted, Output: output}, nil
	}
	return jobs.Result{}, fmt.Errorf("stt poll: unknown status %q", parsed.Status)
}

func truncate(raw []byte) string {
	const max = 256
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

var _ jobs.Engine = (*Client)(nil)
