package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrUnauthorized,
		ErrForbidden, ErrInternal, ErrConflict, ErrServiceUnavail,
		ErrPaymentFailed, ErrGone,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j])
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("db down")}
	assert.Equal(t, "INTERNAL_ERROR: boom: db down", withCause.Error())

	plain := &AppError{Code: "NOT_FOUND", Message: "donation missing"}
	assert.Equal(t, "NOT_FOUND: donation missing", plain.Error())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("donation", "ref-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"already exists", AlreadyExists("admin", "email", "a@b.c"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists},
		{"invalid input", InvalidInput("amount is required"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("nope"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("super admin only"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("busy"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"gone", Gone("expired"), "GONE", http.StatusGone, ErrGone},
		{"payment failed", PaymentFailed("declined"), "PAYMENT_FAILED", http.StatusBadRequest, ErrPaymentFailed},
		{"token expired", TokenError(http.StatusUnauthorized, CodeTokenExpired, "expired"), CodeTokenExpired, http.StatusUnauthorized, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestServiceUnavailable_WrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ServiceUnavailable("gateway unreachable", cause)

	assert.ErrorIs(t, err, ErrServiceUnavail)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", TokenError(http.StatusUnauthorized, CodeTokenRevoked, "revoked"))
	assert.Equal(t, CodeTokenRevoked, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InvalidInput("bad"), http.StatusBadRequest},
		{"wrapped not found", Wrap(ErrNotFound, "get donation"), http.StatusNotFound},
		{"conflict sentinel", ErrConflict, http.StatusConflict},
		{"unauthorized sentinel", ErrUnauthorized, http.StatusUnauthorized},
		{"gone sentinel", ErrGone, http.StatusGone},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
