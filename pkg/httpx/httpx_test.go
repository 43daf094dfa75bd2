package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecover(t *testing.T) {
	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), httpx.Recover())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "server_error")
}

func TestWriteJSON_NoCache(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteJSON(rec, http.StatusOK, map[string]string{"ok": "yes"})

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.com"}`, false},
		{"unknown field", `{"email":"a@b.com","admin":true}`, true},
		{"trailing data", `{"email":"a@b.com"}{}`, true},
		{"not json", `email=a@b.com`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.payload))
			var dst body
			err := httpx.DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tc.wantErr {
				require.ErrorIs(t, err, httpx.ErrBadBody)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "a@b.com", dst.Email)
		})
	}
}

func TestValidate(t *testing.T) {
	type req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"new_password" validate:"notblank,min=8"`
	}

	require.NoError(t, httpx.Validate(req{Email: "user@x.com", Password: "hunter2x"}))

	err := httpx.Validate(req{Email: "nope", Password: "short"})
	var vErr *httpx.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.ElementsMatch(t, []httpx.InvalidField{
		{Name: "email", Rule: "email"},
		{Name: "new_password", Rule: "min"},
	}, vErr.Fields)
}

func TestAuthnMiddleware(t *testing.T) {
	auth := func(_ context.Context, bearer string) (string, string, error) {
		if bearer == "good" {
			return "u1", "s1", nil
		}
		return "", "", errors.New("bad token")
	}

	var gotUser, gotSession string
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = httpx.UserID(r.Context())
		gotSession, _ = httpx.SessionID(r.Context())
	}), httpx.AuthnMiddleware(auth))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepted token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "u1", gotUser)
		require.Equal(t, "s1", gotSession)
	})
}
