package queue

import "encoding/json"

// Job kinds understood by the pipeline worker.
const (
	KindPlaceCall         = "place_call"
	KindFetchRecording    = "fetch_recording"
	KindPollTranscription = "poll_transcription"
	KindPollAnalysis      = "poll_analysis"
	KindCompileReport     = "compile_report"
)

// Message is the payload sent to the pipeline worker.
type Message struct {
	Kind        string `json:"kind"`
	InterviewID string `json:"interviewId"`
	TenantID    string `json:"tenantId"`
	AttemptID   string `json:"attemptId,omitempty"`
	JobHandle   string `json:"jobHandle,omitempty"`
	// RecordingURL is carried on fetch_recording messages.
	RecordingURL string `json:"recordingUrl,omitempty"`
	SubmittedAt  string `json:"submittedAt,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
	EnqueuedAt   string `json:"enqueuedAt"`
	// DelaySeconds defers delivery, used for poll intervals and retry backoff.
	DelaySeconds int32 `json:"delaySeconds,omitempty"`
	Version      int   `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
