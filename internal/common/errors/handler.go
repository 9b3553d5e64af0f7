package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorHandler renders core errors as JSON responses. Every code in the
// taxonomy maps to its own status so clients can tell "no permission" from
// "not found" from "lost a race".
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorResponse is the wire body for failed requests.
type ErrorResponse struct {
	Error *StandardError `json:"error"`
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

var httpStatusMapping = map[ErrorCode]int{
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeForbidden:         http.StatusForbidden,
	ErrCodeInvalidTransition: http.StatusConflict,
	ErrCodeConflict:          http.StatusPreconditionFailed,
	ErrCodeUnauthenticated:   http.StatusUnauthorized,
	ErrCodeRateLimited:       http.StatusTooManyRequests,
	ErrCodeTimeout:           http.StatusGatewayTimeout,
	ErrCodeInternal:          http.StatusInternalServerError,
}

func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Write normalizes err and writes it to w.
func (h *ErrorHandler) Write(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)
	h.logError(r, stdErr, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: stdErr})
}

func (h *ErrorHandler) logError(r *http.Request, stdErr *StandardError, status int) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    status,
		"errorCode": string(stdErr.Code),
		"message":   stdErr.Message,
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
	}
	if stdErr.cause != nil {
		fields["cause"] = stdErr.cause.Error()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}
