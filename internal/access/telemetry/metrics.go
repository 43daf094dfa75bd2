// Package telemetry exposes token lifecycle metrics in Prometheus format.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
)

const namespace = "ledgerdrop"

// Metrics implements service.Metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tokensIssued    *prometheus.CounterVec
	tokensRedeemed  *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	sessionsRevoked prometheus.Counter
}

var _ service.Metrics = (*Metrics)(nil)

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens issued, by purpose.",
		}, []string{"purpose"}),
		tokensRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_redeemed_total",
			Help:      "Redemption attempts that reached a token, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, by kind and result.",
		}, []string{"kind", "result"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions deleted by revoke-all.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.tokensRedeemed,
		m.deliveries,
		m.sessionsRevoked,
	)
	return m
}

func (m *Metrics) TokenIssued(purpose domain.Purpose) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(string(purpose)).Inc()
}

func (m *Metrics) TokenRedeemed(purpose domain.Purpose, outcome string) {
	if m == nil {
		return
	}
	m.tokensRedeemed.WithLabelValues(string(purpose), outcome).Inc()
}

func (m *Metrics) Delivery(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SessionsRevoked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.Add(float64(n))
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
