package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the gateway's prometheus instruments. Construct once per
// process with the registry the /metrics endpoint serves; tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration.
type Metrics struct {
	StkPushInitiatedTotal prometheus.Counter
	StkPushRejectedTotal  *prometheus.CounterVec
	CallbacksTotal        *prometheus.CounterVec
	ReconciledTotal       prometheus.Counter
	ProviderCallDuration  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StkPushInitiatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stkpush_initiated_total",
			Help: "Number of push requests accepted by the provider",
		}),
		StkPushRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_rejected_total",
			Help: "Number of initiation attempts rejected before a record was created",
		}, []string{"reason"}),
		CallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stkpush_callbacks_total",
			Help: "Provider callbacks received, by handling outcome",
		}, []string{"outcome"}),
		ReconciledTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stkpush_reconciled_total",
			Help: "Stale pending transactions resolved by the reconcile job",
		}),
		ProviderCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "daraja_call_duration_seconds",
			Help:    "Latency of outbound Daraja API calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"endpoint", "success"}),
	}
}

func (m *Metrics) RecordInitiated() {
	m.StkPushInitiatedTotal.Inc()
}

func (m *Metrics) RecordRejected(reason string) {
	m.StkPushRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCallback(outcome string) {
	m.CallbacksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordReconciled() {
	m.ReconciledTotal.Inc()
}

func (m *Metrics) ObserveProviderCall(endpoint string, seconds float64, success bool) {
	successLabel := "false"
	if success {
		successLabel = "true"
	}
	m.ProviderCallDuration.WithLabelValues(endpoint, successLabel).Observe(seconds)
}
