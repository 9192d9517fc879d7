package api

import (
	"encoding/json"
	"net/http"

	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

const maxBodyBytes = 64 << 10

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeScanInProgress     = "SCAN_IN_PROGRESS"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps a service error to its HTTP status. Server-side
// failures are logged and their details withheld from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	respondError(w, status, code, message, details)
}

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string, map[string]interface{}) {
	catErr := errors.Categorize(err)
	if catErr == nil || catErr.StatusCode >= http.StatusInternalServerError {
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil
	}
	return catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details
}
