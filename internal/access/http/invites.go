package http

import (
	"net/http"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
)

type InviteHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Invite to Firm
//	@Description	Issues an invite for an accountant or client. The caller must be a firm admin of firm_id.
//	@Description	The invite link is returned as well as mailed so it can be handed over if delivery fails.
//	@Tags			Invites
//	@Accept			json
//	@Produce		json
//	@Param			request	body		InviteRequest	true	"firm_id, role, email"
//	@Success		201		{object}	InviteResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"error, error_description"
//	@Failure		401		{object}	httpx.ErrorResponse	"error, error_description"
//	@Security		BearerAuth
//	@Router			/v1/invites [post].
func (h *InviteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserID(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	sessionID, _ := httpx.SessionID(ctx)

	var req InviteRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.TokenService.IssueInvite(ctx,
		service.Principal{UserID: userID, SessionID: sessionID},
		service.InviteRequest{FirmID: req.FirmID, Role: domain.Role(req.Role), Email: req.Email},
	)
	if err != nil {
		writeServiceError(w, r, err, "issue invite")
		return
	}

	resp := InviteResponse{
		InviteToken: res.Token,
		InviteLink:  res.Link,
		ExpiresAt:   res.ExpiresAt,
	}
	if res.DeliveryErr != nil {
		resp.DeliveryError = "the invite email could not be sent; share the link directly"
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

type InviteRedeemHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Accept Invite
//	@Description	Creates the invitee's account and firm membership and returns a session. Firm and role always come from the invite itself.
//	@Tags			Invites
//	@Accept			json
//	@Produce		json
//	@Param			request	body		InviteRedeemRequest	true	"token, purpose, display_name, password"
//	@Success		201		{object}	InviteRedeemResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"invalid_request or invalid_token"
//	@Failure		502		{object}	httpx.ErrorResponse	"downstream_update_failed"
//	@Router			/v1/invites/redeem [post].
func (h *InviteRedeemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req InviteRedeemRequest
	if !decode(w, r, &req) {
		return
	}
	purpose, ok := domain.ParsePurpose(req.Purpose)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "unknown purpose")
		return
	}

	out, err := h.TokenService.RedeemInvite(r.Context(), req.Token, purpose, service.AccountDetails{
		DisplayName: req.DisplayName,
		Password:    req.Password,
		FirmID:      req.FirmID,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		writeServiceError(w, r, err, "redeem invite")
		return
	}

	resp := InviteRedeemResponse{
		UserID: out.User.ID,
		FirmID: out.Membership.FirmID,
		Role:   string(out.Membership.Role),
	}
	if out.Session != nil {
		resp.SessionToken = out.Session.Token
		resp.SessionExpiresAt = &out.Session.ExpiresAt
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}
