package http_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	accesshttp "github.com/aussiebroadwan/ledgerdrop/internal/access/http"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store/drivers/memory"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/telemetry"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const bootstrapToken = "test-bootstrap-token"

type outbox struct {
	mu     sync.Mutex
	resets []service.PasswordResetNotice
	invite []service.InviteNotice
	err    error
}

func (o *outbox) SendPasswordReset(_ context.Context, n service.PasswordResetNotice) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets = append(o.resets, n)
	return o.err
}

func (o *outbox) SendInvite(_ context.Context, n service.InviteNotice) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invite = append(o.invite, n)
	return o.err
}

func (o *outbox) lastResetToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.resets)
	u, err := url.Parse(o.resets[len(o.resets)-1].Link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testServer struct {
	srv    *httptest.Server
	outbox *outbox
	tokens *service.TokenService
	ip     atomic.Int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := memory.NewStore()
	hasher := cryptox.NewPasswordHasherWithParams("pepper", cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1})

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("k1", priv)
	require.NoError(t, err)

	metrics := telemetry.New()
	sessions := &service.SessionService{
		Store:    st,
		Signer:   signer,
		Verifier: jwtx.NewVerifierEdDSA("k1", signer.Public(), "ledgerdrop"),
		Issuer:   "ledgerdrop",
		TTL:      time.Hour,
		Hasher:   hasher,
		Metrics:  metrics,
	}
	box := &outbox{}
	tokens := &service.TokenService{
		Store:     st,
		Generator: service.RandomSecrets{},
		Notifier:  box,
		Sessions:  sessions,
		Hasher:    hasher,
		Metrics:   metrics,
		Config:    service.TokenConfig{PublicOrigin: "https://app.ledgerdrop.test"},
	}

	router := accesshttp.NewRouter("test", st, slogx.Discard())
	router.TokenService = tokens
	router.SessionService = sessions
	router.BootstrapService = &service.BootstrapService{Store: st, Token: bootstrapToken, Hasher: hasher}
	router.MetricsHandler = metrics.Handler()
	router.ApplyRoutes()

	ts := &testServer{srv: httptest.NewServer(router), outbox: box, tokens: tokens}
	t.Cleanup(ts.srv.Close)
	return ts
}

type call struct {
	method  string
	path    string
	body    any
	bearer  string
	headers map[string]string

	// ip pins the client address; by default every call gets a fresh one so
	// strict rate limits do not interfere.
	ip string
}

func (ts *testServer) do(t *testing.T, c call, out any) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			body.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&body).Encode(b))
		}
	}
	req, err := http.NewRequestWithContext(t.Context(), c.method, ts.srv.URL+c.path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	ip := c.ip
	if ip == "" {
		ip = fmt.Sprintf("198.51.100.%d", ts.ip.Add(1)%250)
	}
	req.Header.Set("X-Forwarded-For", ip)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// bootstrap creates a firm with admin@acme.test and returns the admin's
// session token and the firm id.
func (ts *testServer) bootstrap(t *testing.T) (string, string) {
	t.Helper()

	var boot accesshttp.BootstrapResponse
	resp := ts.do(t, call{
		method:  http.MethodPost,
		path:    "/v1/bootstrap",
		headers: map[string]string{accesshttp.BootstrapTokenHeader: bootstrapToken},
		body: accesshttp.BootstrapRequest{
			FirmName:         "Acme Tax",
			AdminEmail:       "admin@acme.test",
			AdminDisplayName: "Ada",
			AdminPassword:    "correct horse",
		},
	}, &boot)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return ts.login(t, "admin@acme.test", "correct horse"), boot.FirmID
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	var sess accesshttp.SessionResponse
	resp := ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/sessions",
		body:   accesshttp.LoginRequest{Email: email, Password: password},
	}, &sess)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer", sess.TokenType)
	return sess.SessionToken
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	oldSession, _ := ts.bootstrap(t)

	var known, unknown map[string]any
	resp := ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "admin@acme.test"}}, &known)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp = ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "nobody@acme.test"}}, &unknown)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, known, unknown)
	require.Equal(t, map[string]any{"status": "accepted"}, known)

	raw := ts.outbox.lastResetToken(t)

	var redeemed accesshttp.StatusResponse
	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/password-reset/redeem",
		body:   accesshttp.PasswordResetRedeemRequest{Token: raw, NewPassword: "hunter2x"},
	}, &redeemed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "password_updated", redeemed.Status)

	var errResp httpx.ErrorResponse
	resp = ts.do(t, call{method: http.MethodGet, path: "/v1/me", bearer: oldSession}, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/password-reset/redeem",
		body:   accesshttp.PasswordResetRedeemRequest{Token: raw, NewPassword: "hunter2x"},
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_token", errResp.Error)

	ts.login(t, "admin@acme.test", "hunter2x")
}

func TestPasswordResetRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body any
	}{
		{"not json", "{"},
		{"unknown field", `{"email":"a@b.test","admin":true}`},
		{"bad email", map[string]string{"email": "nope"}},
		{"missing email", map[string]string{}},
		{"trailing data", `{"email":"a@b.test"} {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errResp httpx.ErrorResponse
			resp := ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: tc.body}, &errResp)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, "invalid_request", errResp.Error)
		})
	}
}

func TestPasswordResetHidesDeliveryFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.bootstrap(t)
	ts.outbox.err = errors.New("smtp down")

	var body map[string]any
	resp := ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "admin@acme.test"}}, &body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, map[string]any{"status": "accepted"}, body)
}

func TestPasswordResetExposedLinks(t *testing.T) {
	ts := newTestServer(t)
	ts.bootstrap(t)
	ts.tokens.Config.ExposeResetLinks = true

	var body accesshttp.PasswordResetResponse
	resp := ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "admin@acme.test"}}, &body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Contains(t, body.ResetLink, "https://app.ledgerdrop.test/reset-password?token=")
}

func TestPasswordResetDownstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.bootstrap(t)
	ts.tokens.Sessions = brokenRevoker{SessionManager: ts.tokens.Sessions}

	ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "admin@acme.test"}}, nil)

	var errResp httpx.ErrorResponse
	resp := ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/password-reset/redeem",
		body:   accesshttp.PasswordResetRedeemRequest{Token: ts.outbox.lastResetToken(t), NewPassword: "hunter2x"},
	}, &errResp)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "downstream_update_failed", errResp.Error)
}

type brokenRevoker struct {
	service.SessionManager
}

func (brokenRevoker) RevokeAll(context.Context, string) error { return errors.New("boom") }

type exhaustedEntropy struct{}

func (exhaustedEntropy) Generate() (cryptox.Secret, error) {
	return cryptox.Secret{}, errors.New("entropy source unavailable")
}

func TestInviteGenerationFailure(t *testing.T) {
	ts := newTestServer(t)
	adminSession, firmID := ts.bootstrap(t)
	ts.tokens.Generator = exhaustedEntropy{}

	var errResp httpx.ErrorResponse
	resp := ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites",
		bearer: adminSession,
		body:   accesshttp.InviteRequest{FirmID: firmID, Role: "client", Email: "client@x.com"},
	}, &errResp)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "token_generation_failed", errResp.Error)
	require.NotContains(t, errResp.ErrorDescription, "entropy")

	// Reset requests still look accepted.
	resp = ts.do(t, call{method: http.MethodPost, path: "/v1/password-reset", body: map[string]string{"email": "admin@acme.test"}}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestInviteFlow(t *testing.T) {
	ts := newTestServer(t)
	adminSession, firmID := ts.bootstrap(t)

	var errResp httpx.ErrorResponse
	resp := ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites",
		body:   accesshttp.InviteRequest{FirmID: firmID, Role: "client", Email: "client@x.com"},
	}, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites",
		bearer: adminSession,
		body:   accesshttp.InviteRequest{FirmID: firmID, Role: "firm_admin", Email: "client@x.com"},
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, []httpx.InvalidField{{Name: "role", Rule: "oneof"}}, errResp.Fields)

	var invite accesshttp.InviteResponse
	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites",
		bearer: adminSession,
		body:   accesshttp.InviteRequest{FirmID: firmID, Role: "client", Email: "client@x.com"},
	}, &invite)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, invite.InviteToken)
	require.Contains(t, invite.InviteLink, "/accept-invite?")
	require.Empty(t, invite.DeliveryError)

	var redeemed accesshttp.InviteRedeemResponse
	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites/redeem",
		body: accesshttp.InviteRedeemRequest{
			Token:       invite.InviteToken,
			Purpose:     "invite-client",
			DisplayName: "Carla Client",
			Password:    "hunter2x",
			FirmID:      "some-other-firm",
			Role:        "firm_admin",
		},
	}, &redeemed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, firmID, redeemed.FirmID)
	require.Equal(t, "client", redeemed.Role)
	require.NotEmpty(t, redeemed.SessionToken)

	var me accesshttp.MeResponse
	resp = ts.do(t, call{method: http.MethodGet, path: "/v1/me", bearer: redeemed.SessionToken}, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "client@x.com", me.Email)
	require.Equal(t, []accesshttp.MembershipResponse{{FirmID: firmID, Role: "client"}}, me.Memberships)
	require.Equal(t, 1, me.ActiveSessions)

	// The client cannot invite.
	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites",
		bearer: redeemed.SessionToken,
		body:   accesshttp.InviteRequest{FirmID: firmID, Role: "client", Email: "friend@x.com"},
	}, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/invites/redeem",
		body: accesshttp.InviteRedeemRequest{
			Token: invite.InviteToken, Purpose: "invite-client", DisplayName: "Again", Password: "hunter2x",
		},
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_token", errResp.Error)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	session, _ := ts.bootstrap(t)

	resp := ts.do(t, call{method: http.MethodDelete, path: "/v1/sessions/current", bearer: session}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, call{method: http.MethodGet, path: "/v1/me", bearer: session}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.bootstrap(t)

	var errResp httpx.ErrorResponse
	resp := ts.do(t, call{
		method: http.MethodPost,
		path:   "/v1/sessions",
		body:   accesshttp.LoginRequest{Email: "admin@acme.test", Password: "wrong horse"},
	}, &errResp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", errResp.Error)
}

func TestBootstrapErrors(t *testing.T) {
	ts := newTestServer(t)
	body := accesshttp.BootstrapRequest{
		FirmName: "Acme", AdminEmail: "a@acme.test", AdminDisplayName: "A", AdminPassword: "correct horse",
	}

	resp := ts.do(t, call{method: http.MethodPost, path: "/v1/bootstrap", body: body,
		headers: map[string]string{accesshttp.BootstrapTokenHeader: "wrong"}}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ts.bootstrap(t)

	resp = ts.do(t, call{method: http.MethodPost, path: "/v1/bootstrap", body: body,
		headers: map[string]string{accesshttp.BootstrapTokenHeader: bootstrapToken}}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStrictRateLimit(t *testing.T) {
	ts := newTestServer(t)

	codes := make([]int, 0, 8)
	for range 8 {
		resp := ts.do(t, call{
			method: http.MethodPost,
			path:   "/v1/password-reset",
			body:   map[string]string{"email": "nobody@acme.test"},
			ip:     "203.0.113.7",
		}, nil)
		codes = append(codes, resp.StatusCode)
	}
	require.Equal(t, http.StatusAccepted, codes[0])
	require.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var health accesshttp.HealthResponse
	resp := ts.do(t, call{method: http.MethodGet, path: "/livez"}, &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "test", health.Version)
	require.NotEmpty(t, resp.Header.Get(slogx.RequestIDHeader))

	resp = ts.do(t, call{method: http.MethodGet, path: "/readyz"}, &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", health.Checks["database"])

	resp = ts.do(t, call{method: http.MethodGet, path: "/metrics"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
