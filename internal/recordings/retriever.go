package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"prescreen-backend/internal/artifacts"
	"prescreen-backend/internal/telephony"
)

// ErrRecordingUnavailable means the provider has no media for this call and
// never will. Timeouts and provider 5xx responses are not wrapped in it;
// those pass through so callers can retry the download.
var ErrRecordingUnavailable = errors.New("recording unavailable")

// Fetcher downloads recording media from the telephony provider with
// provider credentials. Recording URLs are never fetched anonymously.
type Fetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) (io.ReadCloser, string, error)
}

// Retriever pulls call recordings from the provider into object storage.
type Retriever struct {
	Fetcher   Fetcher
	Artifacts *artifacts.Service
}

// NewRetriever constructs a Retriever.
func NewRetriever(fetcher Fetcher, svc *artifacts.Service) *Retriever {
	return &Retriever{Fetcher: fetcher, Artifacts: svc}
}

// Retrieve downloads the recording and stores it as a ready artifact,
// hashing the audio as it streams through.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, interviewID, recordingURL string) (artifacts.Artifact, error) {
	if strings.TrimSpace(recordingURL) == "" {
		return artifacts.Artifact{}, fmt.Errorf("%w: provider sent no media url", ErrRecordingUnavailable)
	}

	body, contentType, err := r.Fetcher.FetchRecording(ctx, recordingURL)
	if err != nil {
		if errors.Is(err, telephony.ErrNoRecording) {
			return artifacts.Artifact{}, fmt.Errorf("%w: %s", ErrRecordingUnavailable, err)
		}
		return artifacts.Artifact{}, fmt.Errorf("fetch recording: %w", err)
	}
	defer body.Close()

	if contentType == "" {
		contentType = "audio/mpeg"
	}

	a, err := r.Artifacts.SaveStream(ctx, tenantID, interviewID, artifacts.KindRecording, "call-recording.mp3", contentType, body)
	if err != nil {
		return artifacts.Artifact{}, err
	}
	return a, nil
}
