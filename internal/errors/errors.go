// Package errors classifies scanner failures so callers can decide between
// retrying, reporting a bad request, or surfacing a server fault.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/polytracker/scanner/internal/types"
)

// ErrorCategory groups errors by who is at fault and whether a retry can help
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryProvider   ErrorCategory = "provider"
	CategoryDatabase   ErrorCategory = "database"
	CategorySystem     ErrorCategory = "system"
)

// CategorizedError carries a category, the HTTP status it maps to and a stable code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
}

func (e *CategorizedError) Unwrap() error { return e.Cause }

func newError(cat ErrorCategory, status int, code, msg string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{Category: cat, StatusCode: status, Code: code, Message: msg, Details: details}
}

// NewInvalidAddressError reports a wallet that is not a 20-byte hex address
func NewInvalidAddressError(wallet string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, "INVALID_ADDRESS",
		fmt.Sprintf("invalid wallet address: %q", wallet),
		map[string]interface{}{"wallet": wallet})
}

// NewInvalidParameterError reports a malformed request field
func NewInvalidParameterError(param, reason string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, "INVALID_PARAMETER",
		fmt.Sprintf("invalid %s: %s", param, reason),
		map[string]interface{}{"parameter": param, "reason": reason})
}

// NewNotFoundError reports a missing trade, wallet, or tracked entry
func NewNotFoundError(resource, id string) *CategorizedError {
	return newError(CategoryNotFound, http.StatusNotFound, "NOT_FOUND",
		fmt.Sprintf("%s %s not found", resource, id),
		map[string]interface{}{"resource": resource, "id": id})
}

// NewDatabaseError wraps a store failure
func NewDatabaseError(operation string, cause error) *CategorizedError {
	e := newError(CategoryDatabase, http.StatusInternalServerError, "DATABASE_ERROR",
		"store failure during "+operation,
		map[string]interface{}{"operation": operation})
	e.Cause = cause
	return e
}

// NewInternalError wraps an unclassified failure
func NewInternalError(message string, cause error) *CategorizedError {
	e := newError(CategorySystem, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
	e.Cause = cause
	return e
}

// NewProviderError wraps a transport failure talking to an upstream API.
// Transport failures are treated as transient.
func NewProviderError(provider string, cause error) *CategorizedError {
	e := newError(CategoryProvider, http.StatusBadGateway, "PROVIDER_ERROR",
		provider+" request failed",
		map[string]interface{}{"provider": provider})
	e.Cause = cause
	return e
}

// NewProviderTimeoutError reports an upstream call that ran out of time
func NewProviderTimeoutError(provider string) *CategorizedError {
	return newError(CategoryProvider, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT",
		provider+" timed out",
		map[string]interface{}{"provider": provider})
}

// NewProviderRateLimitError reports an upstream 429
func NewProviderRateLimitError(provider string) *CategorizedError {
	return newError(CategoryProvider, http.StatusTooManyRequests, "PROVIDER_RATE_LIMIT",
		provider+" rate limit exceeded",
		map[string]interface{}{"provider": provider})
}

// NewProviderResponseTooLargeError reports a body over the client's cap. Not retryable.
func NewProviderResponseTooLargeError(provider string, limit int64) *CategorizedError {
	return newError(CategoryProvider, http.StatusBadGateway, "PROVIDER_RESPONSE_TOO_LARGE",
		fmt.Sprintf("%s response exceeded %d bytes", provider, limit),
		map[string]interface{}{"provider": provider, "limit": limit})
}

// NewProviderStatusError maps a non-2xx upstream response. 429 and 5xx stay
// retryable; other 4xx responses are permanent.
func NewProviderStatusError(provider string, status int, body string) *CategorizedError {
	switch status {
	case http.StatusTooManyRequests:
		return NewProviderRateLimitError(provider)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return NewProviderTimeoutError(provider)
	}
	return newError(CategoryProvider, status, "PROVIDER_HTTP_ERROR",
		fmt.Sprintf("%s returned status %d", provider, status),
		map[string]interface{}{"provider": provider, "status": status, "body": body})
}

// Categorize returns the CategorizedError in err's chain. A types.ServiceError
// is classified by its code; anything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}
	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return fromServiceError(svcErr)
	}
	return NewInternalError("unexpected error", err)
}

func fromServiceError(err *types.ServiceError) *CategorizedError {
	cat, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER", "INVALID_MARKET":
		cat, status = CategoryValidation, http.StatusBadRequest
	case "NOT_FOUND", "WALLET_NOT_FOUND", "MARKET_NOT_FOUND", "TRADE_NOT_FOUND":
		cat, status = CategoryNotFound, http.StatusNotFound
	}
	return newError(cat, status, err.Code, err.Message, err.Details)
}

// GetHTTPStatusCode returns the HTTP status for err
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether another attempt may succeed: upstream rate
// limits, timeouts and 5xx responses, and store failures.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryProvider:
		if catErr.Code == "PROVIDER_RESPONSE_TOO_LARGE" {
			return false
		}
		s := catErr.StatusCode
		return s == http.StatusTooManyRequests || s == http.StatusRequestTimeout || s >= 500
	case CategoryDatabase:
		return true
	}
	return false
}

// IsUserError reports whether err maps to a 4xx status
func IsUserError(err error) bool {
	s := GetHTTPStatusCode(err)
	return s >= 400 && s < 500
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}
