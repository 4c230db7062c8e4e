package api

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a client failure
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindRateLimit  Kind = "rate_limit"
	KindServer     Kind = "server"
	KindHTTP       Kind = "http"
)

// User-facing messages produced by the client
const (
	msgEmptyQuestion   = "Question cannot be empty"
	msgQuestionTooLong = "Question must be 2000 characters or less"
	msgContextTooLong  = "Context must be 2000 characters or less"
	msgTimeout         = "Request timeout - server took too long to respond"
	msgNetwork         = "Network request failed - check your connection"
	msgServer          = "Server error - please try again later"
	msgQueryFailed     = "Failed to process query"
	msgFeedbackFailed  = "Failed to submit feedback"
	msgReportFailed    = "Failed to report issue"

	defaultRetryAfter = "60"
)

// Error is returned by every Client operation that can fail
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	// RetryAfter is set for rate-limit errors
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindValidation {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrServer     = &Error{Kind: KindServer}
	ErrHTTP       = &Error{Kind: KindHTTP}
)

// KindOf returns the kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing message of err, or "" when err is not an
// *Error
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}
