// Package metrics exposes role reconciliation counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation outcomes.
const (
	OutcomeCreated          = "created"
	OutcomeCorrected        = "corrected"
	OutcomeCorrectionFailed = "correction_failed"
	OutcomeUnchanged        = "unchanged"
	OutcomeDegraded         = "degraded"
	OutcomeUnauthorized     = "unauthenticated"
)

// Metrics counts reconciliation work. A nil *Metrics is a no-op so tests can
// run services without a registry.
type Metrics struct {
	// Reconciliations by outcome. "corrected" counts durable privilege
	// writes only; a failed write lands on "correction_failed".
	Reconciliations *prometheus.CounterVec
}

// New registers the counters on the default registry. Call once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the counters on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Reconciliations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sandoog_role_reconciliations_total",
			Help: "Role reconciliations by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}
