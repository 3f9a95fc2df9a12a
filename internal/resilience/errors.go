// Package resilience classifies pipeline failures and provides caller-side
// retry and circuit breaking for engine calls.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind names the class of a pipeline failure.
type Kind string

const (
	KindInput        Kind = "input"
	KindTransport    Kind = "transport"
	KindEngine       Kind = "engine"
	KindPrecondition Kind = "precondition"
	KindUnknown      Kind = "unknown"
)

// InputError reports a ledger upload that could not be turned into a record:
// empty upload, malformed CSV or JSON, missing column, non-numeric balance.
// It is always raised before any network call.
type InputError struct {
	Stage string
	Err   error
}

func (e *InputError) Error() string {
	return "input: " + e.Stage + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError wraps err as an input failure at the named stage.
func NewInputError(stage string, err error) *InputError {
	return &InputError{Stage: stage, Err: err}
}

// TransportError reports a request that could not complete. Its message is
// the underlying error's message, unchanged.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EngineError is a non-success response from the decision engine. Detail is
// the engine's message, or a generic one when the body carried none.
type EngineError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *EngineError) Error() string {
	return e.Detail
}

// PreconditionError reports a packet request rejected before any network call.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// KindOf classifies err by the first typed failure in its chain.
func KindOf(err error) Kind {
	var (
		inputErr   *InputError
		transErr   *TransportError
		engineErr  *EngineError
		precondErr *PreconditionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inputErr):
		return KindInput
	case errors.As(err, &precondErr):
		return KindPrecondition
	case errors.As(err, &engineErr):
		return KindEngine
	case errors.As(err, &transErr):
		return KindTransport
	}
	return KindUnknown
}

// IsTransient returns true when a retry might succeed: transport failures,
// engine responses with a retryable status, and common network error
// patterns. Input and precondition failures are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch KindOf(err) {
	case KindInput, KindPrecondition:
		return false
	case KindTransport:
		return true
	case KindEngine:
		var engineErr *EngineError
		errors.As(err, &engineErr)
		return IsTransientHTTPStatus(engineErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
