package accesssdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes returned in the "error" field.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeUnauthorized        = "unauthorized"
	ErrorCodeDownstreamFailed    = "downstream_update_failed"
	ErrorCodeGenerationFailed    = "token_generation_failed"
	ErrorCodeAlreadyBootstrapped = "already_bootstrapped"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeRateLimited         = "rate_limit_exceeded"
	ErrorCodeServerError         = "server_error"
)

// FieldError names a request field the server rejected and the rule it broke.
type FieldError struct {
	Name string `json:"name"`
	Rule string `json:"rule"`
}

// APIError is any non-2xx response from the service.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
	Fields      []FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name + ":" + f.Rule
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Description, strings.Join(names, ", "))
}

func code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsInvalidToken reports whether a reset or invite token was rejected. The
// server does not say why.
func IsInvalidToken(err error) bool { return code(err) == ErrorCodeInvalidToken }

// IsUnauthorized reports a missing, expired or insufficient session.
func IsUnauthorized(err error) bool { return code(err) == ErrorCodeUnauthorized }

// IsInvalidRequest reports a malformed or invalid request body.
func IsInvalidRequest(err error) bool { return code(err) == ErrorCodeInvalidRequest }

// IsDownstreamFailure reports that a token was consumed but a follow-up
// update failed. The token cannot be reused.
func IsDownstreamFailure(err error) bool { return code(err) == ErrorCodeDownstreamFailed }

// IsRateLimited reports a 429 answer.
func IsRateLimited(err error) bool { return code(err) == ErrorCodeRateLimited }

// parseErrorResponse turns an error body into an *APIError, falling back to
// the status text when the body is not the service's error shape.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			Fields:      errResp.Fields,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
