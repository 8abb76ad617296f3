// Package metrics exposes request workflow counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	KindElevation = "elevation"
	KindJoin      = "join"

	ActionFiled    = "filed"
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// Metrics counts request workflow activity. A nil *Metrics is a no-op.
type Metrics struct {
	requests *prometheus.CounterVec
	denials  prometheus.Counter
}

// New registers the counters on the default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sandoog_requests_total",
			Help: "Request ledger transitions by kind and action",
		}, []string{"kind", "action"}),
		denials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sandoog_request_eligibility_denials_total",
			Help: "Elevation filings denied by the eligibility evaluator",
		}),
	}
}

func (m *Metrics) ObserveRequest(kind, action string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) ObserveDenial() {
	if m == nil {
		return
	}
	m.denials.Inc()
}
