// Package metrics exposes Prometheus counters for the claim-link lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"memberdesk/cmd/internal/claim"
	"memberdesk/cmd/internal/linktoken"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements linktoken.Recorder and claim.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	TokensIssued     *prometheus.CounterVec
	TokensRevoked    *prometheus.CounterVec
	TokenValidations *prometheus.CounterVec
	ClaimsOpened     *prometheus.CounterVec
	ClaimsSubmitted  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

var (
	_ linktoken.Recorder = (*Metrics)(nil)
	_ claim.Recorder     = (*Metrics)(nil)
)

// New registers every memberdesk metric on a fresh registry, alongside the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_tokens_issued_total",
			Help: "Claim-link tokens issued, by purpose",
		}, []string{"purpose"}),
		TokensRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_tokens_revoked_total",
			Help: "Claim-link tokens revoked by staff, by purpose",
		}, []string{"purpose"}),
		TokenValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_token_validations_total",
			Help: "Secret validations, by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		ClaimsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_claims_opened_total",
			Help: "Claim sessions opened, by purpose and resulting state",
		}, []string{"purpose", "state"}),
		ClaimsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_claims_submitted_total",
			Help: "Claim submissions, by purpose and final state",
		}, []string{"purpose", "state"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdesk_http_requests_total",
			Help: "HTTP requests, by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberdesk_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TokenIssued implements linktoken.Recorder.
func (m *Metrics) TokenIssued(p linktoken.Purpose) {
	m.TokensIssued.WithLabelValues(string(p)).Inc()
}

// TokenRevoked implements linktoken.Recorder.
func (m *Metrics) TokenRevoked(p linktoken.Purpose) {
	m.TokensRevoked.WithLabelValues(string(p)).Inc()
}

// TokenValidated implements linktoken.Recorder.
func (m *Metrics) TokenValidated(p linktoken.Purpose, o linktoken.Outcome) {
	m.TokenValidations.WithLabelValues(string(p), string(o)).Inc()
}

// ClaimOpened implements claim.Recorder.
func (m *Metrics) ClaimOpened(p linktoken.Purpose, s claim.State) {
	m.ClaimsOpened.WithLabelValues(string(p), string(s)).Inc()
}

// ClaimSubmitted implements claim.Recorder.
func (m *Metrics) ClaimSubmitted(p linktoken.Purpose, s claim.State) {
	m.ClaimsSubmitted.WithLabelValues(string(p), string(s)).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTP(route string, status int, start time.Time) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
