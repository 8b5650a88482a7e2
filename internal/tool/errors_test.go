package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *Error
		kind Kind
		want error
	}{
		{InvalidParameters("x"), KindInvalidParameters, ErrInvalidParameters},
		{ServiceUnavailable("svc", ""), KindServiceUnavailable, ErrServiceUnavailable},
		{APIRateLimit("svc"), KindAPIRateLimit, ErrAPIRateLimit},
		{NetworkError("x"), KindNetworkError, ErrNetworkError},
		{InternalError("x"), KindInternalError, ErrInternalError},
		{ServiceNotFound("x"), KindServiceNotFound, ErrServiceNotFound},
		{ServiceDisabled("x"), KindServiceDisabled, ErrServiceDisabled},
		{Timeout("svc"), KindTimeout, ErrTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.err.Kind)
		assert.ErrorIs(t, tt.err, tt.want)
		assert.Equal(t, tt.kind == KindInvalidParameters, errors.Is(tt.err, ErrInvalidParameters),
			"%v matched the wrong sentinel", tt.err)
	}
}

func TestError_Payload(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(InvalidParameters("missing required parameter: path"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"success":false,"error":"invalid parameters","code":"INVALID_PARAMETERS","details":"missing required parameter: path"}`,
		string(raw))

	assert.Equal(t, "INVALID_PARAMETERS: invalid parameters: bad", InvalidParameters("bad").Error())
}

func TestError_Cause(t *testing.T) {
	t.Parallel()

	err := InternalError("reading").WithCause(os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindInternalError, KindOf(wrapped))
	assert.Equal(t, KindInternalError, KindOf(errors.New("plain")), "untyped errors are internal")
}

func TestKind_Retryable(t *testing.T) {
	t.Parallel()

	retryable := map[Kind]bool{
		KindInvalidParameters:  false,
		KindServiceUnavailable: true,
		KindAPIRateLimit:       true,
		KindNetworkError:       true,
		KindInternalError:      false,
		KindServiceNotFound:    false,
		KindServiceDisabled:    false,
		KindTimeout:            true,
	}
	for k, want := range retryable {
		assert.Equal(t, want, k.Retryable(), "%s.Retryable()", k)
	}
}

type statusError int

func (s statusError) Error() string   { return fmt.Sprintf("HTTP %d", int(s)) }
func (s statusError) HTTPStatus() int { return int(s) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindNetworkError},
		{"dns", &net.DNSError{Name: "api.example.com", Err: "no such host"}, KindNetworkError},
		{"429", statusError(429), KindAPIRateLimit},
		{"503", fmt.Errorf("upstream: %w", statusError(503)), KindServiceUnavailable},
		{"404", statusError(404), KindInternalError},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", timeoutError{}, KindTimeout},
		{"other", errors.New("boom"), KindInternalError},
		{"typed passes through", InvalidParameters("x"), KindInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tt.err, "svc")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}

	assert.Nil(t, MapError(nil, "svc"))
}
