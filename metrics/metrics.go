// Package metrics exposes Prometheus counters for the claim service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks claim outcomes, latency and faucet use.
type Metrics struct {
	registry *prometheus.Registry

	ClaimsTotal    *prometheus.CounterVec
	ClaimDuration  prometheus.Histogram
	FaucetTotal    prometheus.Counter
	MetadataStored prometheus.Counter
}

// New creates a Metrics instance registered on its own registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ClaimsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calm_claims_total",
			Help: "Claims submitted, by outcome (settled, or the rejection reason)",
		}, []string{"outcome"}),
		ClaimDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "calm_claim_duration_seconds",
			Help:    "Duration of claim submission including ledger retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FaucetTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "calm_faucet_grants_total",
			Help: "Total number of faucet grants",
		}),
		MetadataStored: f.NewCounter(prometheus.CounterOpts{
			Name: "calm_metadata_stored_total",
			Help: "Total number of metadata objects stored",
		}),
	}
}

// IncrementClaim records one claim outcome.
func (m *Metrics) IncrementClaim(outcome string) {
	m.ClaimsTotal.WithLabelValues(outcome).Inc()
}

// ObserveClaim records the duration of a claim submission.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveClaim(start time.Time) {
	m.ClaimDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementFaucet() { m.FaucetTotal.Inc() }

func (m *Metrics) IncrementMetadata() { m.MetadataStored.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
