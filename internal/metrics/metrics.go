package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for invocation counters.
const (
	OutcomeAccepted = "accepted"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Result label values for reconcile counters.
const (
	ResultRequeue = "requeue"
	ResultError   = "error"
	ResultGone    = "gone"
)

// Metrics holds the Prometheus collectors for taskline.
type Metrics struct {
	Invocations *prometheus.CounterVec
	SubmitTime  *prometheus.HistogramVec
	Reconciles  *prometheus.CounterVec
}

// New registers all collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskline_invocations_total",
				Help: "Total number of task invocations by outcome",
			},
			[]string{"namespace", "task", "outcome"},
		),
		SubmitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskline_job_submit_duration_seconds",
				Help:    "Time spent creating a Job in the cluster",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"namespace"},
		),
		Reconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskline_reconcile_total",
				Help: "Total number of Task reconciliations by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveInvocation is safe on a nil receiver.
func (m *Metrics) ObserveInvocation(namespace, task, outcome string) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(namespace, task, outcome).Inc()
}

func (m *Metrics) ObserveSubmit(namespace string, seconds float64) {
	if m == nil {
		return
	}
	m.SubmitTime.WithLabelValues(namespace).Observe(seconds)
}

func (m *Metrics) ObserveReconcile(result string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(result).Inc()
}
