package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openrouter")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "root")
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewStoreUnavailableError(errors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("begin turn: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrStoreUnavailable, got.Code)
	assert.Equal(t, http.StatusServiceUnavailable, got.HTTPStatus)
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrStoreUnavailable))
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    *Error
		code   ErrorCode
		status int
	}{
		{"invalid", NewInvalidRequestError("bad"), ErrInvalidRequest, http.StatusBadRequest},
		{"not found", NewNotFoundError("missing"), ErrNotFound, http.StatusNotFound},
		{"upstream", NewUpstreamError("openrouter", errors.New("boom")), ErrUpstreamError, http.StatusBadGateway},
		{"internal", NewInternalError("oops", nil), ErrInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}
