package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"prescreen-backend/internal/telephony"
)

const defaultBaseURL = "https://api.twilio.com"

// Client implements telephony.Provider using the Twilio Calls API.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Twilio client. baseURL may be empty to use the
// production API host.
func NewClient(accountSID, authToken, fromNumber, baseURL string) (*Client, error) {
	if strings.TrimSpace(accountSID) == "" {
		return nil, fmt.Errorf("TELEPHONY_ACCOUNT_SID is required")
	}
	if strings.TrimSpace(authToken) == "" {
		return nil, fmt.Errorf("TELEPHONY_AUTH_TOKEN is required")
	}
	if strings.TrimSpace(fromNumber) == "" {
		return nil, fmt.Errorf("TELEPHONY_FROM_NUMBER is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	timeout := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("TELEPHONY_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type callResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Place starts an outbound call and returns the provider call SID.
func (c *Client) Place(ctx context.Context, req telephony.PlaceRequest) (string, error) {
	from := req.From
	if from == "" {
		from = c.fromNumber
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", from)
	form.Set("StatusCallback", req.StatusCallback)
	form.Set("StatusCallbackMethod", http.MethodPost)
	// Only terminal outcomes matter to the pipeline, but Twilio requires
	// explicit event opt-in for anything beyond "completed".
	form["StatusCallbackEvent"] = []string{"completed", "no-answer", "busy", "failed"}
	form.Set("Record", "true")
	form.Set("RecordingStatusCallback", req.RecordingCallback)
	form.Set("RecordingStatusCallbackMethod", http.MethodPost)
	form.Set("Url", req.StatusCallback)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("twilio place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed callResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("twilio response parse: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parsed.Message != "" {
			return "", fmt.Errorf("twilio error %d: %s (code %d)", resp.StatusCode, parsed.Message, parsed.Code)
		}
		return "", fmt.Errorf("twilio error %d", resp.StatusCode)
	}
	if parsed.SID == "" {
		return "", fmt.Errorf("twilio response missing call sid")
	}
	return parsed.SID, nil
}

// FetchRecording downloads the recording media over authenticated HTTP. The
// URL comes from the recording callback and points back at the Twilio API.
func (c *Client) FetchRecording(ctx context.Context, recordingURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("twilio fetch recording: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, "", ErrRecordingNotReady
	}
	if resp.StatusCode == http.StatusGone {
		// Twilio serves 410 once the recording has been deleted.
		resp.Body.Close()
		return nil, "", fmt.Errorf("twilio recording gone: %w", telephony.ErrNoRecording)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("twilio fetch recording: status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

var _ telephony.Provider = (*Client)(nil)
