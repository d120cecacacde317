package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"prescreen-backend/internal/jobs"
	"prescreen-backend/internal/llm"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	batchCustomID  = "analysis"
)

// Client implements jobs.Engine using the Anthropic Message Batches API.
// Each Submit creates a single-request batch; Poll tracks the batch until
// it ends and then fetches and validates the scoring output.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// NewClient constructs an Anthropic client. baseURL may be empty to use the
// production API host.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	timeout := 60 * time.Second
	if raw := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: 2048,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type messageParams struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []chatMessage  `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type batchRequest struct {
	Requests []batchRequestEntry `json:"requests"`
}

type batchRequestEntry struct {
	CustomID string        `json:"custom_id"`
	Params   messageParams `json:"params"`
}

type batchResponse struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
	ResultsURL       string `json:"results_url"`
	Error            *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type batchResultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string `json:"type"`
		Message struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			StopReason string `json:"stop_reason"`
		} `json:"message"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"result"`
}

// Submit creates a one-request batch for the encoded analysis input and
// returns the batch id.
func (c *Client) Submit(ctx context.Context, input []byte) (string, error) {
	var in llm.AnalysisInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("analysis input parse: %w", err)
	}
	system, user := llm.BuildPrompt(in)

	payload, err := json.Marshal(batchRequest{
		Requests: []batchRequestEntry{{
			CustomID: batchCustomID,
			Params: messageParams{
				Model:     c.model,
				MaxTokens: c.maxTokens,
				System:    system,
				Messages:  []chatMessage{{Role: "user", Content: user}},
			},
		}},
	})
	if err != nil {
		return "", err
	}

	parsed, err := c.doBatch(ctx, http.MethodPost, "/v1/messages/batches", payload)
	if err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("anthropic batch response missing id")
	}
	return parsed.ID, nil
}

// Poll reads the batch state. Once the batch ends, the single result line is
// fetched, its text content extracted, and the scoring JSON validated.
func (c *Client) Poll(ctx context.Context, handle string) (jobs.Result, error) {
	parsed, err := c.doBatch(ctx, http.MethodGet, "/v1/messages/batches/"+handle, nil)
	if err != nil {
		return jobs.Result{}, err
	}

	switch parsed.ProcessingStatus {
	case "in_progress", "canceling":
		return jobs.Result{Status: jobs.StatusPending}, nil
	case "ended":
	default:
		return jobs.Result{}, fmt.Errorf("anthropic batch: unknown processing status %q", parsed.ProcessingStatus)
	}

	resultsURL := parsed.ResultsURL
	if resultsURL == "" {
		resultsURL = c.baseURL + "/v1/messages/batches/" + handle + "/results"
	}
	return c.fetchResult(ctx, resultsURL)
}

func (c *Client) doBatch(ctx context.Context, method, path string, payload []byte) (batchResponse, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return batchResponse{}, err
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return batchResponse{}, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return batchResponse{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return batchResponse{}, jobs.ErrUnknownJob
	}

	var parsed batchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return batchResponse{}, fmt.Errorf("anthropic response parse: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parsed.Error != nil {
			return batchResponse{}, fmt.Errorf("anthropic error %d: %s (%s)", resp.StatusCode, parsed.Error.Message, parsed.Error.Type)
		}
		return batchResponse{}, fmt.Errorf("anthropic error %d", resp.StatusCode)
	}
	return parsed, nil
}

func (c *Client) fetchResult(ctx context.Context, resultsURL string) (jobs.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultsURL, nil)
	if err != nil {
		return jobs.Result{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("anthropic results fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return jobs.Result{}, fmt.Errorf("anthropic results fetch: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry batchResultLine
		if err := json.Unmarshal(line, &entry); err != nil {
			return jobs.Result{}, fmt.Errorf("anthropic results parse: %w", err)
		}
		if entry.CustomID != batchCustomID {
			continue
		}
		return resultFromEntry(entry), nil
	}
	if err := scanner.Err(); err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{}, fmt.Errorf("anthropic results missing entry %q", batchCustomID)
}

func resultFromEntry(entry batchResultLine) jobs.Result {
	if entry.Result.Type != "succeeded" {
		reason := entry.Result.Error.Message
		if reason == "" {
			reason = "analysis request " + entry.Result.Type
		}
		return jobs.Result{Status: jobs.StatusFailed, Reason: reason}
	}

	var text strings.Builder
	for _, block := range entry.Result.Message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := []byte(strings.TrimSpace(text.String()))
	if _, err := llm.ValidateAnalysis(raw); err != nil {
		return jobs.Result{Status: jobs.StatusFailed, Reason: err.Error()}
	}
	return jobs.Result{Status: jobs.StatusCompleted, Output: raw}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

var _ jobs.Engine = (*Client)(nil)
