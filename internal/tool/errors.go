package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Kind is the stable, machine-readable code carried by every Error.
type Kind string

// Error kinds. The string values are part of the wire contract.
const (
	KindInvalidParameters  Kind = "INVALID_PARAMETERS"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindAPIRateLimit       Kind = "API_RATE_LIMIT"
	KindNetworkError       Kind = "NETWORK_ERROR"
	KindInternalError      Kind = "INTERNAL_ERROR"
	KindServiceNotFound    Kind = "SERVICE_NOT_FOUND"
	KindServiceDisabled    Kind = "SERVICE_DISABLED"
	KindTimeout            Kind = "TIMEOUT"
)

// Sentinels for errors.Is matching against an Error's kind.
var (
	ErrInvalidParameters  error = kindSentinel(KindInvalidParameters)
	ErrServiceUnavailable error = kindSentinel(KindServiceUnavailable)
	ErrAPIRateLimit       error = kindSentinel(KindAPIRateLimit)
	ErrNetworkError       error = kindSentinel(KindNetworkError)
	ErrInternalError      error = kindSentinel(KindInternalError)
	ErrServiceNotFound    error = kindSentinel(KindServiceNotFound)
	ErrServiceDisabled    error = kindSentinel(KindServiceDisabled)
	ErrTimeout            error = kindSentinel(KindTimeout)
)

type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// Retryable reports whether an orchestrator may retry an operation that
// failed with this kind. The core itself never retries.
func (k Kind) Retryable() bool {
	switch k {
	case KindServiceUnavailable, KindNetworkError, KindTimeout, KindAPIRateLimit:
		return true
	default:
		return false
	}
}

// Error is the typed error value returned across every component boundary.
type Error struct {
	Kind    Kind
	Message string
	Details string
	cause   error
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, message, details string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Details)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches the kind sentinels (ErrTimeout, ErrInvalidParameters, ...).
func (e *Error) Is(target error) bool {
	if k, ok := target.(kindSentinel); ok {
		return Kind(k) == e.Kind
	}
	return false
}

// WithCause attaches an underlying error and returns e.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Payload is the serialized form of an Error.
type Payload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    Kind   `json:"code"`
	Details string `json:"details,omitempty"`
}

// Payload returns the wire representation of e.
func (e *Error) Payload() Payload {
	return Payload{Success: false, Error: e.Message, Code: e.Kind, Details: e.Details}
}

// MarshalJSON encodes e as {success:false, error, code, details}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}

// InvalidParameters reports bad, missing, or out-of-policy caller input.
func InvalidParameters(details string) *Error {
	return NewError(KindInvalidParameters, "invalid parameters", details)
}

// InvalidParametersf is InvalidParameters with fmt formatting.
func InvalidParametersf(format string, args ...any) *Error {
	return InvalidParameters(fmt.Sprintf(format, args...))
}

// ServiceUnavailable reports a transient upstream failure.
func ServiceUnavailable(service, reason string) *Error {
	if reason == "" {
		reason = "the service is temporarily overloaded, retry later"
	}
	return NewError(KindServiceUnavailable, service+" is temporarily unavailable", reason)
}

// APIRateLimit reports that a caller exceeded a request budget.
func APIRateLimit(service string) *Error {
	return NewError(KindAPIRateLimit, service+" request rate exceeded", "too many requests, retry later")
}

// NetworkError reports a connection-level failure.
func NetworkError(details string) *Error {
	return NewError(KindNetworkError, "network connection failed", details)
}

// InternalError reports an unexpected failure of the core itself.
func InternalError(details string) *Error {
	return NewError(KindInternalError, "internal error", details)
}

// ServiceNotFound reports an unknown service or tool.
func ServiceNotFound(id string) *Error {
	return NewError(KindServiceNotFound, "service not found", "no service provides "+id)
}

// ServiceDisabled reports a call routed to a disabled service.
func ServiceDisabled(name string) *Error {
	return NewError(KindServiceDisabled, "service disabled", name+" is not enabled")
}

// Timeout reports that an upstream did not answer in time.
func Timeout(service string) *Error {
	return NewError(KindTimeout, "request timed out", service+" did not respond in time")
}

// KindOf returns the kind of err, or KindInternalError when err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternalError
}

// HTTPStatusError is implemented by collaborator errors that carry an
// HTTP response status.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// MapError normalizes a collaborator failure into the taxonomy:
// connection refused / DNS → NetworkError, HTTP 429 → APIRateLimit,
// HTTP ≥500 → ServiceUnavailable, timeouts → Timeout, anything else →
// InternalError. An *Error is returned unchanged.
func MapError(err error, service string) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return NetworkError("unable to connect to " + service).WithCause(err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return NetworkError("unable to resolve " + dnsErr.Name).WithCause(err)
	}

	var se HTTPStatusError
	if errors.As(err, &se) {
		switch status := se.HTTPStatus(); {
		case status == 429:
			return APIRateLimit(service).WithCause(err)
		case status >= 500:
			return ServiceUnavailable(service, fmt.Sprintf("upstream returned HTTP %d", status)).WithCause(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return Timeout(service).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(service).WithCause(err)
	}

	return InternalError(err.Error()).WithCause(err)
}
