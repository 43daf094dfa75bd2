package accesssdk

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Session carries a bearer token for the authenticated endpoints.
type Session struct {
	client *SDKClient

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewSession wraps an existing session token, e.g. one kept from an earlier
// sign-in.
func (c *SDKClient) NewSession(token string, expiresAt time.Time) *Session {
	return &Session{client: c, token: token, expiresAt: expiresAt}
}

// Token returns the bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt is when the server stops accepting the token.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) headers() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, &APIError{
			StatusCode:  http.StatusUnauthorized,
			Code:        ErrorCodeUnauthorized,
			Description: "session has been signed out",
		}
	}
	return map[string]string{"Authorization": "Bearer " + s.token}, nil
}

func (s *Session) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	headers, err := s.headers()
	if err != nil {
		return nil, err
	}
	return s.client.doJSON(ctx, method, path, body, headers)
}

// Invite invites someone to a firm the session's user administers.
func (s *Session) Invite(ctx context.Context, req InviteRequest) (*InviteResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/invites", req)
	if err != nil {
		return nil, err
	}

	var out InviteResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the signed-in user and their memberships.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/me", nil)
	if err != nil {
		return nil, err
	}

	var out MeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session on the server and forgets the token.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodDelete, "/v1/sessions/current", nil)
	if err != nil {
		return err
	}
	if err := checkStatusNoContent(resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
