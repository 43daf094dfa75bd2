package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

type PasswordResetHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Request Password Reset
//	@Description	Mails a single-use reset link if the address belongs to an account. The response is the same whether or not it does.
//	@Tags			Password Reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PasswordResetRequest	true	"email"
//	@Success		202		{object}	PasswordResetResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"error, error_description"
//	@Failure		429		{object}	httpx.ErrorResponse	"error, error_description"
//	@Router			/v1/password-reset [post].
func (h *PasswordResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PasswordResetRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.TokenService.RequestPasswordReset(ctx, req.Email)
	if errors.Is(err, service.ErrInvalidInput) {
		writeServiceError(w, r, err, "request password reset")
		return
	}
	if err != nil {
		// Answer as if it worked; a different response would reveal that
		// the address has an account.
		slogx.FromContext(ctx).Error("password reset issuance failed", "err", err)
	}

	resp := PasswordResetResponse{Status: "accepted"}
	if h.TokenService.Config.ExposeResetLinks {
		resp.ResetLink = res.Link
	}
	httpx.WriteJSON(w, http.StatusAccepted, resp)
}

type PasswordResetRedeemHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Redeem Password Reset
//	@Description	Sets a new password with a reset token and signs the account out of every session.
//	@Tags			Password Reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PasswordResetRedeemRequest	true	"token, new_password"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"invalid_request or invalid_token"
//	@Failure		502		{object}	httpx.ErrorResponse	"downstream_update_failed"
//	@Router			/v1/password-reset/redeem [post].
func (h *PasswordResetRedeemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRedeemRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.TokenService.RedeemPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err, "redeem password reset")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{Status: "password_updated"})
}
