// Package providers defines the adapter contract for upstream model APIs and
// the shared HTTP transport the adapters use.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallRequest is a single model invocation. System, when set, is delivered
// the way each upstream expects (leading system message or dedicated field).
type CallRequest struct {
	Model       string
	Messages    []Message
	System      string
	Temperature float64
	MaxTokens   int
}

// CallResult is the completed response. Token counts come from the provider
// usage block; when the provider omits usage they stay zero.
type CallResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Caller executes a blocking model call.
type Caller interface {
	Call(ctx context.Context, req CallRequest) (*CallResult, error)
}

// Streamer executes a streaming model call. Text fragments arrive on the
// first channel in order; a terminal failure arrives on the second. Both
// channels are closed when the stream ends.
type Streamer interface {
	Stream(ctx context.Context, req CallRequest) (<-chan string, <-chan error)
}

var (
	// ErrCredentialMissing means the provider had no credential at call time.
	ErrCredentialMissing = errors.New("provider credential missing")
	// ErrTimeout means the call exceeded the per-call deadline.
	ErrTimeout = errors.New("provider call timed out")
	// ErrDecode means the response body did not match the expected shape.
	ErrDecode = errors.New("provider response decode failed")
)

// StatusError captures an HTTP status code from a provider response.
// Used by adapters to return structured errors that Classify can inspect.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// ParseRetryAfter records a Retry-After header value expressed in integer
// seconds. HTTP-date forms are ignored.
func (e *StatusError) ParseRetryAfter(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		e.RetryAfterSecs = secs
	}
}

// ErrorClass buckets provider failures for logging and routing decisions.
type ErrorClass string

const (
	ClassRateLimited ErrorClass = "rate_limited"
	ClassTransient   ErrorClass = "transient"
	ClassTimeout     ErrorClass = "timeout"
	ClassFatal       ErrorClass = "fatal"
)

// Classify buckets an error: 429/529 rate-limited, 5xx transient, deadline
// or timeout errors timeout, everything else fatal.
func Classify(err error) ErrorClass {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429 || se.StatusCode == 529:
			return ClassRateLimited
		case se.StatusCode >= 500:
			return ClassTransient
		}
		return ClassFatal
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassFatal
}
