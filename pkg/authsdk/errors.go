package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeUnauthenticated     = "unauthenticated"
	ErrorCodeForbidden           = "forbidden"
	ErrorCodeInvalidChallenge    = "invalid_challenge"
	ErrorCodeRateLimited         = "rate_limited"
	ErrorCodeLockedOut           = "locked_out"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeProviderUnavailable = "provider_unavailable"
	ErrorCodeServerError         = "server_error"

	ErrorCodeInvalidRequest   = "invalid_request"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeConflict         = "conflict"
	ErrorCodeMFAExhausted     = "mfa_exhausted"
	ErrorCodeAccountNotLinked = "account_not_linked"
)

// statusByCode is the wire status of every error code the service emits.
var statusByCode = map[string]int{
	ErrorCodeUnauthenticated:     http.StatusUnauthorized,
	ErrorCodeForbidden:           http.StatusForbidden,
	ErrorCodeInvalidChallenge:    http.StatusBadRequest,
	ErrorCodeRateLimited:         http.StatusTooManyRequests,
	ErrorCodeLockedOut:           http.StatusLocked,
	ErrorCodeInvalidCredentials:  http.StatusUnauthorized,
	ErrorCodeProviderUnavailable: http.StatusBadGateway,
	ErrorCodeServerError:         http.StatusInternalServerError,
	ErrorCodeInvalidRequest:      http.StatusBadRequest,
	ErrorCodeNotFound:            http.StatusNotFound,
	ErrorCodeConflict:            http.StatusConflict,
	ErrorCodeMFAExhausted:        http.StatusUnauthorized,
	ErrorCodeAccountNotLinked:    http.StatusForbidden,
}

var descriptionByCode = map[string]string{
	ErrorCodeUnauthenticated:     "authentication required",
	ErrorCodeForbidden:           "access denied",
	ErrorCodeInvalidChallenge:    "the challenge is missing, expired or already used",
	ErrorCodeRateLimited:         "too many requests",
	ErrorCodeLockedOut:           "too many failed attempts, try again later",
	ErrorCodeInvalidCredentials:  "invalid credentials",
	ErrorCodeProviderUnavailable: "the identity provider could not be reached",
	ErrorCodeServerError:         "internal server error",
	ErrorCodeInvalidRequest:      "the request is malformed or missing required parameters",
	ErrorCodeNotFound:            "not found",
	ErrorCodeConflict:            "the resource already exists",
	ErrorCodeMFAExhausted:        "too many invalid codes, sign in again",
	ErrorCodeAccountNotLinked:    "no account is linked to this identity",
}

// ============================================================================
// APIError
// ============================================================================

// APIError is the error body every endpoint returns. It implements error so
// the SDK client can hand it back to callers unchanged.
type APIError struct {
	StatusCode  int           `json:"-"`
	Code        string        `json:"error"`
	Description string        `json:"error_description"`
	RetryAfter  time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *APIError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// WriteError writes the error as JSON, with Retry-After when set.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	if s := e.RetryAfterSeconds(); s > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(s))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// NewAPIError builds an error for code with its canonical status. Unknown
// codes are treated as server errors.
func NewAPIError(code string) *APIError {
	status, ok := statusByCode[code]
	if !ok {
		code, status = ErrorCodeServerError, http.StatusInternalServerError
	}
	return &APIError{
		StatusCode:  status,
		Code:        code,
		Description: descriptionByCode[code],
	}
}

var (
	ErrUnauthenticated = NewAPIError(ErrorCodeUnauthenticated)
	ErrForbidden       = NewAPIError(ErrorCodeForbidden)
	ErrInvalidRequest  = NewAPIError(ErrorCodeInvalidRequest)
	ErrNotFound        = NewAPIError(ErrorCodeNotFound)
	ErrServerError     = NewAPIError(ErrorCodeServerError)
)

// ============================================================================
// Mapping service errors
// ============================================================================

// Coded is implemented by service errors that carry a wire error code.
type Coded interface {
	ErrorCode() string
}

// Retryable is implemented by errors that tell the caller when to retry.
type Retryable interface {
	RetryAfterDuration() time.Duration
}

// FromError maps an error returned by a service onto its wire form. Errors
// without a code (including secret integrity failures) become server_error
// so internals never leak into a response.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var c Coded
	if !errors.As(err, &c) {
		return NewAPIError(ErrorCodeServerError)
	}

	out := NewAPIError(c.ErrorCode())
	var r Retryable
	if errors.As(err, &r) {
		out.RetryAfter = r.RetryAfterDuration()
	}
	return out
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	out := &APIError{StatusCode: resp.StatusCode}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			out.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		out.Code = errResp.Error
		out.Description = errResp.ErrorDescription
		return out
	}

	out.Code = ErrorCodeServerError
	out.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return out
}
