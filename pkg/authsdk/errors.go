package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

// Error codes carried in the "error" field of every error body.
const (
	ErrorCodeUnauthorized        = "unauthorized"
	ErrorCodeForbidden           = "forbidden"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeInvalidOTP          = "invalid_otp"
	ErrorCodeInvalidRefreshToken = "invalid_refresh_token"
	ErrorCodeRateLimited         = "rate_limited"
	ErrorCodeServiceUnavailable  = "service_unavailable"
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeAccountLocked       = "account_locked"
	ErrorCodeMFAAlreadyEnabled   = "mfa_already_enabled"
	ErrorCodeMFANotPending       = "mfa_not_pending"
	ErrorCodeMFANotEnabled       = "mfa_not_enabled"
	ErrorCodeMFARequired         = "mfa_required"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeConflict            = "conflict"
	ErrorCodeServerError         = "server_error"
)

// APIError is the error both sides of the wire agree on. Handlers write it
// with WriteError; the client parses responses back into it.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code, so a parsed error satisfies errors.Is against the
// predefined values below.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Message)
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *APIError) WithMessage(msg string) *APIError {
	c := *e
	c.Message = msg
	return &c
}

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

var (
	ErrUnauthorized        = NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
	ErrForbidden           = NewAPIError(http.StatusForbidden, ErrorCodeForbidden, "insufficient role")
	ErrInvalidCredentials  = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidCredentials, "invalid username or password")
	ErrInvalidOTP          = NewAPIError(http.StatusBadRequest, ErrorCodeInvalidOTP, "invalid one-time password")
	ErrInvalidRefreshToken = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidRefreshToken, "session expired, please log in again")
	ErrRateLimited         = NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "too many requests")
	ErrServiceUnavailable  = NewAPIError(http.StatusServiceUnavailable, ErrorCodeServiceUnavailable, "service unavailable")
	ErrInvalidRequest      = NewAPIError(http.StatusBadRequest, ErrorCodeInvalidRequest, "the request is malformed or missing required fields")
	ErrAccountLocked       = NewAPIError(http.StatusForbidden, ErrorCodeAccountLocked, "account locked")
	ErrMFAAlreadyEnabled   = NewAPIError(http.StatusConflict, ErrorCodeMFAAlreadyEnabled, "multi-factor authentication is already enabled")
	ErrMFANotPending       = NewAPIError(http.StatusConflict, ErrorCodeMFANotPending, "multi-factor enrollment has not been started")
	ErrMFANotEnabled       = NewAPIError(http.StatusConflict, ErrorCodeMFANotEnabled, "multi-factor authentication is not enabled")
	ErrMFARequired         = NewAPIError(http.StatusForbidden, ErrorCodeMFARequired, "multi-factor authentication required")
	ErrNotFound            = NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "not found")
	ErrConflict            = NewAPIError(http.StatusConflict, ErrorCodeConflict, "conflict")
	ErrServerError         = NewAPIError(http.StatusInternalServerError, ErrorCodeServerError, "internal server error")
)

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not in the error format fall back to a code derived from the status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: er.Error, Message: er.Message}
	}

	code := ErrorCodeServerError
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = ErrorCodeUnauthorized
	case http.StatusForbidden:
		code = ErrorCodeForbidden
	case http.StatusNotFound:
		code = ErrorCodeNotFound
	case http.StatusTooManyRequests:
		code = ErrorCodeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = ErrorCodeServiceUnavailable
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
