package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
)

const BootstrapTokenHeader = "X-Bootstrap-Token"

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP godoc
//
//	@Summary		Bootstrap
//	@Description	Creates the first firm and its administrator. Only works once, and only with the configured bootstrap token.
//	@Tags			System
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string				true	"Bootstrap token"
//	@Param			request				body		BootstrapRequest	true	"firm and admin details"
//	@Success		201					{object}	BootstrapResponse
//	@Failure		400					{object}	httpx.ErrorResponse	"error, error_description"
//	@Failure		401					{object}	httpx.ErrorResponse	"error, error_description"
//	@Failure		409					{object}	httpx.ErrorResponse	"error, error_description"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.BootstrapService.Bootstrap(r.Context(), r.Header.Get(BootstrapTokenHeader), service.BootstrapData{
		FirmName:         req.FirmName,
		AdminEmail:       req.AdminEmail,
		AdminDisplayName: req.AdminDisplayName,
		AdminPassword:    req.AdminPassword,
	})
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, BootstrapResponse{FirmID: res.FirmID, AdminUserID: res.UserID})
	case errors.Is(err, service.ErrBootstrapDisabled):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "bootstrap is not enabled")
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "invalid bootstrap token")
	case errors.Is(err, service.ErrBootstrapAlready):
		httpx.WriteError(w, http.StatusConflict, "already_bootstrapped", "the system has already been bootstrapped")
	default:
		writeServiceError(w, r, err, "bootstrap")
	}
}
