package accesssdk

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBootstrapRequestValidate(t *testing.T) {
	t.Parallel()

	valid := BootstrapRequest{
		FirmName:         "Acme Tax",
		AdminEmail:       "admin@acme.test",
		AdminDisplayName: "Ada",
		AdminPassword:    "correct horse",
	}
	require.Nil(t, valid.Validate())

	errs := BootstrapRequest{AdminEmail: "Ada <ada@acme.test>", AdminPassword: "short"}.Validate()
	require.Equal(t, map[string]string{
		"firm_name":          "required",
		"admin_email":        "not a valid email address",
		"admin_display_name": "required",
		"admin_password":     "too short (min 8)",
	}, errs)
}

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	t.Run("service error body", func(t *testing.T) {
		body := `{"error":"invalid_request","error_description":"invalid fields","fields":[{"name":"email","rule":"email"}]}`
		err := parseErrorResponse(&http.Response{StatusCode: http.StatusBadRequest}, []byte(body))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		require.Equal(t, []FieldError{{Name: "email", Rule: "email"}}, apiErr.Fields)
		require.True(t, IsInvalidRequest(err))
		require.EqualError(t, err, "invalid_request: invalid fields (email:email)")
	})

	t.Run("foreign body", func(t *testing.T) {
		err := parseErrorResponse(&http.Response{StatusCode: http.StatusBadGateway}, []byte("<html>bad gateway</html>"))
		require.EqualError(t, err, "server_error: HTTP 502: Bad Gateway")
		require.False(t, IsDownstreamFailure(err))
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, parseErrorResponse(&http.Response{StatusCode: http.StatusOK}, nil))
	})
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	require.True(t, IsInvalidToken(&APIError{Code: ErrorCodeInvalidToken}))
	require.True(t, IsUnauthorized(&APIError{Code: ErrorCodeUnauthorized}))
	require.True(t, IsRateLimited(&APIError{Code: ErrorCodeRateLimited}))
	require.True(t, IsDownstreamFailure(&APIError{Code: ErrorCodeDownstreamFailed}))
	require.False(t, IsInvalidToken(http.ErrHandlerTimeout))
	require.False(t, IsInvalidToken(nil))
}

func TestSessionSendsBearer(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	session := NewSDKClient(srv.URL + "/").NewSession("tok-123", time.Time{})
	require.NoError(t, session.Logout(t.Context()))
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Empty(t, session.Token())

	_, err := session.Me(t.Context())
	require.True(t, IsUnauthorized(err))
}
