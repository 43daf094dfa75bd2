package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

// Error codes returned in ErrorResponse.Error.
const (
	codeInvalidRequest   = "invalid_request"
	codeInvalidToken     = "invalid_token"
	codeUnauthorized     = "unauthorized"
	codeDownstreamFailed = "downstream_update_failed"
	codeGenerationFailed = "token_generation_failed"
	codeServerError      = "server_error"
)

// decode reads and validates a JSON body, writing the 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a single JSON object with known fields")
		return false
	}
	if err := httpx.Validate(dst); err != nil {
		var verr *httpx.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
				Error:            codeInvalidRequest,
				ErrorDescription: "one or more fields are invalid",
				Fields:           verr.Fields,
			})
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes. Anything unexpected
// is logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "email address is already registered")
	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidToken, "token is invalid or expired")
	case errors.Is(err, service.ErrUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "not allowed")
	case errors.Is(err, service.ErrDownstreamUpdate):
		httpx.WriteError(w, http.StatusBadGateway, codeDownstreamFailed, "the token was used but the account could not be updated; request a new one")
	case errors.Is(err, service.ErrGeneration):
		slogx.FromContext(r.Context()).Error("token generation failed", "action", action, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, codeGenerationFailed, "a token could not be generated; try again")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "action", action, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, codeServerError, "internal error")
	}
}
