package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

// Authenticator resolves a bearer token to the user and session it belongs to.
type Authenticator func(ctx context.Context, bearer string) (userID, sessionID string, err error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[7:])
	return raw, raw != ""
}

// AuthnMiddleware rejects requests without a valid session bearer token and
// stores the principal in the request context.
func AuthnMiddleware(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			userID, sessionID, err := auth(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Debug("bearer rejected", "err", err)
				writeBearerError(w, "session is not valid")
				return
			}

			ctx = WithPrincipal(ctx, userID, sessionID)
			ctx = slogx.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized", desc)
}
