package telemetry

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
)

func TestMetricsCount(t *testing.T) {
	m := New()

	m.TokenIssued(domain.PurposePasswordReset)
	m.TokenIssued(domain.PurposePasswordReset)
	m.TokenIssued(domain.PurposeInviteClient)
	m.TokenRedeemed(domain.PurposePasswordReset, service.OutcomeSuccess)
	m.TokenRedeemed(domain.PurposePasswordReset, service.OutcomeInvalid)
	m.Delivery("invite", nil)
	m.Delivery("invite", errors.New("down"))
	m.SessionsRevoked(3)
	m.SessionsRevoked(0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.tokensIssued.WithLabelValues("password-reset")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokensIssued.WithLabelValues("invite-client")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokensRedeemed.WithLabelValues("password-reset", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokensRedeemed.WithLabelValues("password-reset", "invalid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("invite", "sent")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("invite", "failed")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.sessionsRevoked))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.TokenIssued(domain.PurposePasswordReset)
		m.TokenRedeemed(domain.PurposePasswordReset, service.OutcomeSuccess)
		m.Delivery("invite", nil)
		m.SessionsRevoked(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.TokenIssued(domain.PurposeInviteAccountant)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `ledgerdrop_tokens_issued_total{purpose="invite-accountant"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}
