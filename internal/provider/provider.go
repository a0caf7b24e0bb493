package provider

import (
	"context"
	"errors"
	"fmt"

	"askrelay/internal/models"
)

// ErrMissingCredential indicates no upstream API key is configured.
var ErrMissingCredential = errors.New("upstream credential is not configured")

// Gateway issues a single chat completion against an upstream API.
type Gateway interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// CompletionRequest carries everything needed for one upstream call.
type CompletionRequest struct {
	Prompt string
	Model  string
	APIKey string
}

// Completion is a successful upstream result. Text is never empty.
type Completion struct {
	ID           string
	Text         string
	Model        string
	FinishReason string
	Usage        models.Usage
}

// FailureKind classifies an upstream failure.
type FailureKind int

const (
	// KindUnknown covers failures that fit no other kind.
	KindUnknown FailureKind = iota
	// KindHTTPStatus means the upstream answered with an error status.
	KindHTTPStatus
	// KindUnreachable means the request was sent but no response arrived.
	KindUnreachable
	// KindEmptyResponse means the upstream answered without generated text.
	KindEmptyResponse
)

func (k FailureKind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindUnreachable:
		return "unreachable"
	case KindEmptyResponse:
		return "empty_response"
	default:
		return "unknown"
	}
}

// UpstreamError is the only error type a Gateway returns from Complete.
// Detail is meant for server-side logs and must not be sent to clients.
type UpstreamError struct {
	Kind   FailureKind
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	msg := "upstream " + e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstreamError extracts an *UpstreamError from err, classifying anything
// else as KindUnknown.
func AsUpstreamError(err error) *UpstreamError {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr
	}
	return &UpstreamError{Kind: KindUnknown, Err: err}
}
