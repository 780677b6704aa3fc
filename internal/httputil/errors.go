package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Error codes returned in the "error" field of every JSON error body.
const (
	CodeOriginNotAllowed     = "origin_not_allowed"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeInvalidJSON          = "invalid_json"
	CodeInvalidMessages      = "invalid_messages"
	CodeUnsupportedModel     = "unsupported_model"
	CodeAuthenticationFailed = "authentication_failed"
	CodeModelNotPermitted    = "model_not_permitted"
	CodeRateLimitExceeded    = "rate_limit_exceeded"
	CodeInternalError        = "internal_error"
	CodeNotFound             = "not_found"
)

// APIError is the flat error envelope understood by the desktop client.
type APIError struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RateLimitError carries the post-increment count so the client can show
// its quota dialog.
type RateLimitError struct {
	APIError
	Count        int64  `json:"count"`
	Limit        int64  `json:"limit"`
	IdentityType string `json:"identity_type"`
	ResetSeconds int64  `json:"reset_seconds"`
}

func WriteJSON(w http.ResponseWriter, requestID string, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, code, message string) {
	WriteJSON(w, requestID, statusCode, APIError{
		Error:     code,
		Message:   message,
		RequestID: requestID,
	})
}

func WriteOriginError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusForbidden, CodeOriginNotAllowed, "origin is not allowed")
}

func WriteMethodNotAllowedError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

func WriteAuthError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusUnauthorized, CodeAuthenticationFailed, "invalid or missing credentials")
}

func WriteBadRequestError(w http.ResponseWriter, requestID, code, message string) {
	WriteError(w, requestID, http.StatusBadRequest, code, message)
}

func WritePolicyError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, CodeModelNotPermitted, message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID string, e RateLimitError) {
	e.Error = CodeRateLimitExceeded
	e.RequestID = requestID
	if e.Message == "" {
		e.Message = "message quota exceeded for this window"
	}
	if e.ResetSeconds > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(e.ResetSeconds, 10))
	}
	WriteJSON(w, requestID, http.StatusTooManyRequests, e)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, CodeInternalError, message)
}
