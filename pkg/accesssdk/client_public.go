package accesssdk

import (
	"context"
	"net/http"
)

// RequestPasswordReset asks the service to mail a reset link. It succeeds
// whether or not the address belongs to an account.
func (c *SDKClient) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/password-reset", map[string]string{"email": email}, nil)
	if err != nil {
		return nil, err
	}

	var out PasswordResetResponse
	if err := decodeJSON(resp, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// RedeemPasswordReset sets a new password with a reset token. Every session
// of the account is signed out.
func (c *SDKClient) RedeemPasswordReset(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/password-reset/redeem", body, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// RedeemInvite creates the invited account. When the service also signed the
// new user in, the returned Session is non-nil.
func (c *SDKClient) RedeemInvite(ctx context.Context, req InviteRedeemRequest) (*InviteRedeemResponse, *Session, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/invites/redeem", req, nil)
	if err != nil {
		return nil, nil, err
	}

	var out InviteRedeemResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, nil, err
	}

	var session *Session
	if out.SessionToken != "" && out.SessionExpiresAt != nil {
		session = c.NewSession(out.SessionToken, *out.SessionExpiresAt)
	}
	return &out, session, nil
}

// Login exchanges email and password for a Session.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return c.NewSession(out.SessionToken, out.ExpiresAt), nil
}

// Bootstrap creates the first firm and its administrator.
func (c *SDKClient) Bootstrap(ctx context.Context, bootstrapToken string, req BootstrapRequest) (*BootstrapResponse, error) {
	headers := map[string]string{BootstrapTokenHeader: bootstrapToken}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/bootstrap", req, headers)
	if err != nil {
		return nil, err
	}

	var out BootstrapResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service can reach its database.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
