package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load record: %w", NewNotFoundError("application", "app-1"))

	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.False(t, stderrors.Is(err, ErrForbidden))
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestNewInvalidTransitionError_Metadata(t *testing.T) {
	err := NewInvalidTransitionError("Approved", "UnderReview")

	assert.Equal(t, "Approved", err.Metadata["currentStatus"])
	assert.Equal(t, "UnderReview", err.Metadata["targetStatus"])
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "Approved -> UnderReview")
}

func TestNewConflictError_Retryable(t *testing.T) {
	err := NewConflictError("app-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.True(t, IsRetryable(err))
	assert.True(t, stderrors.Is(err, ErrConflict))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeInvalidTransition, http.StatusConflict},
		{ErrCodeConflict, http.StatusPreconditionFailed},
		{ErrCodeUnauthenticated, http.StatusUnauthorized},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

type recordingLogger struct {
	errors, warns int
	last          map[string]interface{}
}

func (l *recordingLogger) Error(_ string, f map[string]interface{}) {
	l.errors++
	l.last = f
}

func (l *recordingLogger) Warn(_ string, f map[string]interface{}) {
	l.warns++
	l.last = f
}

func TestErrorHandler_Write(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/applications/personal_loan/a/status", nil)
	h.Write(rec, req, NewInvalidTransitionError("Rejected", "Approved"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeInvalidTransition, body.Error.Code)
	assert.Equal(t, "Rejected", body.Error.Metadata["currentStatus"])
	assert.Equal(t, 1, log.warns)

	rec = httptest.NewRecorder()
	h.Write(rec, req, stderrors.New("db is down"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, log.errors)
}

// ============================================================================
// Internal and timeout errors
// ============================================================================

func TestNormalize_DeadlineExceededIsTimeout(t *testing.T) {
	err := Normalize(fmt.Errorf("count personal_loans: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, err.Code)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err.Code))
}

func TestNewInternalError_KeepsCauseOutOfBody(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)
	cause := stderrors.New(`pq: relation "personal_loans" does not exist at 10.0.0.12:5432`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	h.Write(rec, req, fmt.Errorf("count: %w", cause))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.12")
	assert.NotContains(t, rec.Body.String(), "personal_loans")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeInternal, body.Error.Code)
	assert.Empty(t, body.Error.Details)

	require.Equal(t, 1, log.errors)
	assert.Contains(t, log.last["cause"], "10.0.0.12")
}

func TestNewInternalError_Unwraps(t *testing.T) {
	sentinel := stderrors.New("overflow")
	err := NewInternalError(fmt.Errorf("grand total: %w", sentinel))
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestErrorHandler_Write_Timeout(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	h.Write(rec, req, context.DeadlineExceeded)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeTimeout, body.Error.Code)
	assert.Equal(t, 1, log.errors)
}
