// Package workerproc parses queue payloads and routes them to the pipeline.
// It classifies failures so the worker binary can decide between deleting a
// message and leaving it for redelivery.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/pipeline"
	"prescreen-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrInvalidMessage indicates a decoded message missing required fields or
// carrying an unknown kind. Such messages can never succeed and are deleted.
type ErrInvalidMessage struct {
	Meta      MessageMeta
	Kind      string
	RequestID string
	Reason    string
}

func (e ErrInvalidMessage) Error() string { return "invalid message: " + e.Reason }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Kind        string
	InterviewID string
	RequestID   string
	Err         error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.Kind
	}
	return "process " + e.Kind + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.InterviewID) == "" {
		return msg, meta, ErrInvalidMessage{Meta: meta, Kind: msg.Kind, RequestID: msg.RequestID, Reason: "missing interview id"}
	}
	if strings.TrimSpace(msg.TenantID) == "" {
		return msg, meta, ErrInvalidMessage{Meta: meta, Kind: msg.Kind, RequestID: msg.RequestID, Reason: "missing tenant id"}
	}
	if !knownKind(msg.Kind) {
		return msg, meta, ErrInvalidMessage{Meta: meta, Kind: msg.Kind, RequestID: msg.RequestID, Reason: "unknown kind " + msg.Kind}
	}
	return msg, meta, nil
}

func knownKind(kind string) bool {
	switch kind {
	case queue.KindPlaceCall, queue.KindFetchRecording, queue.KindPollTranscription,
		queue.KindPollAnalysis, queue.KindCompileReport:
		return true
	}
	return false
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// Dispatcher is the subset of the pipeline orchestrator the worker drives.
type Dispatcher interface {
	PlaceCall(ctx context.Context, msg queue.Message) error
	ProcessRecording(ctx context.Context, msg queue.Message) error
	PollTranscription(ctx context.Context, msg queue.Message) error
	PollAnalysis(ctx context.Context, msg queue.Message) error
	CompileReport(ctx context.Context, msg queue.Message) error
}

var _ Dispatcher = (*pipeline.Orchestrator)(nil)

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, d Dispatcher, body string) error {
	if d == nil {
		return errors.New("pipeline not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	var err error
	switch msg.Kind {
	case queue.KindPlaceCall:
		err = d.PlaceCall(ctx, msg)
	case queue.KindFetchRecording:
		err = d.ProcessRecording(ctx, msg)
	case queue.KindPollTranscription:
		err = d.PollTranscription(ctx, msg)
	case queue.KindPollAnalysis:
		err = d.PollAnalysis(ctx, msg)
	case queue.KindCompileReport:
		err = d.CompileReport(ctx, msg)
	default:
		return ErrInvalidMessage{Kind: msg.Kind, RequestID: msg.RequestID, Reason: "unknown kind " + msg.Kind}
	}
	if err != nil {
		return ErrProcess{Kind: msg.Kind, InterviewID: msg.InterviewID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// Unrecoverable reports whether a processing error can never succeed on
// redelivery: the message should be deleted rather than retried. Stale-stage
// and consent-guard failures are expected under at-least-once delivery.
func Unrecoverable(err error) bool {
	return errors.Is(err, interviews.ErrStaleStage) ||
		errors.Is(err, interviews.ErrNotFound) ||
		errors.Is(err, calls.ErrConsentRequired)
}
