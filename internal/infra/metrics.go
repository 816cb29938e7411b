package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the broker's Prometheus collectors. A single instance is
// shared by the request path and the background loops.
type Metrics struct {
	JobsSubmitted   *prometheus.CounterVec
	JobsPromoted    prometheus.Counter
	JobsReaped      prometheus.Counter
	Transitions     *prometheus.CounterVec
	Refunds         prometheus.Counter
	DispatchFailure prometheus.Counter
	SweepDuration   prometheus.Histogram
}

// NewMetrics registers the broker collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_jobs_submitted_total",
			Help: "Jobs accepted at the submission endpoint, by type.",
		}, []string{"type"}),
		JobsPromoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_jobs_promoted_total",
			Help: "Pending jobs promoted to processing by the queue promoter.",
		}),
		JobsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_jobs_reaped_total",
			Help: "Stale pending jobs failed by the reaper.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_job_transitions_total",
			Help: "Terminal transitions applied by the reconciler, by status.",
		}, []string{"status"}),
		Refunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_credit_refunds_total",
			Help: "Refund transactions written to the credit ledger.",
		}),
		DispatchFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_dispatch_failures_total",
			Help: "Provider dispatch attempts that failed.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "broker_reconcile_sweep_seconds",
			Help:    "Wall time of one reconciler sweep.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
