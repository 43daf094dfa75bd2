package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
)

type LoginHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary		Sign In
//	@Description	Exchanges email and password for a session bearer token.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"email, password"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"error, error_description"
//	@Failure		401		{object}	httpx.ErrorResponse	"error, error_description"
//	@Router			/v1/sessions [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	grant, err := h.SessionService.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "login")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, SessionResponse{
		SessionToken: grant.Token,
		TokenType:    "Bearer",
		ExpiresAt:    grant.ExpiresAt,
	})
}

type LogoutHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary	Sign Out
//	@Tags		Sessions
//	@Success	204
//	@Failure	401	{object}	httpx.ErrorResponse	"error, error_description"
//	@Security	BearerAuth
//	@Router		/v1/sessions/current [delete].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httpx.SessionID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	if err := h.SessionService.Logout(r.Context(), sessionID); err != nil {
		writeServiceError(w, r, err, "logout")
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

type MeHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary		Current Account
//	@Description	Returns the signed-in user, their firm memberships and how many sessions they have open.
//	@Tags			Sessions
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Failure		401	{object}	httpx.ErrorResponse	"error, error_description"
//	@Security		BearerAuth
//	@Router			/v1/me [get].
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httpx.UserID(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	sessionID, _ := httpx.SessionID(ctx)

	user, memberships, err := h.SessionService.Account(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err, "load account")
		return
	}
	active, err := h.SessionService.ActiveSessions(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err, "count sessions")
		return
	}

	resp := MeResponse{
		UserID:         user.ID,
		Email:          user.Email,
		DisplayName:    user.DisplayName,
		SessionID:      sessionID,
		ActiveSessions: active,
		Memberships:    make([]MembershipResponse, 0, len(memberships)),
	}
	for _, m := range memberships {
		resp.Memberships = append(resp.Memberships, MembershipResponse{FirmID: m.FirmID, Role: string(m.Role)})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
