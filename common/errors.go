package common

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Error types for protocol handling and metrics
var (
	// Decode errors
	ErrMalformed = errors.New("malformed datagram")

	// Request errors
	ErrUnavailable = errors.New("server unavailable")
	ErrClosed      = errors.New("session closed")

	// Transport errors
	ErrTransport      = errors.New("transport failure")
	ErrReceiveTimeout = errors.New("receive timeout")

	// Session errors
	ErrLivenessTimeout = errors.New("liveness timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ErrorKind classifies a ProtocolError.
type ErrorKind string

const (
	KindDecode        ErrorKind = "decode"
	KindRequest       ErrorKind = "request"
	KindTransport     ErrorKind = "transport"
	KindSession       ErrorKind = "session"
	KindConfiguration ErrorKind = "configuration"
)

// ProtocolError represents a structured error with context
type ProtocolError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Cause     error             `json:"cause,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new structured protocol error
func NewProtocolError(kind ErrorKind, message string, cause error) *ProtocolError {
	return &ProtocolError{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]string),
		Timestamp: time.Now().Unix(),
	}
}

// WithContext adds context information to the error
func (e *ProtocolError) WithContext(key, value string) *ProtocolError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// IsTimeout reports whether err is a receive deadline expiring.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReceiveTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransportError reports whether err is a socket-level failure.
// Timeouts are not transport failures.
func IsTransportError(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	var pErr *ProtocolError
	if errors.As(err, &pErr) && pErr.Kind == KindTransport {
		return true
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsUnavailable reports whether a request exhausted its retry budget.
func IsUnavailable(err error) bool {
	var pErr *ProtocolError
	if errors.As(err, &pErr) && pErr.Kind == KindRequest {
		return errors.Is(pErr.Cause, ErrUnavailable)
	}
	return errors.Is(err, ErrUnavailable)
}

// IsConfigurationError reports whether err came from config validation.
func IsConfigurationError(err error) bool {
	var pErr *ProtocolError
	if errors.As(err, &pErr) {
		return pErr.Kind == KindConfiguration
	}
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}
