package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	PlanChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "billing",
		Name:      "plan_changes_total",
		Help:      "Effective plan changes written to profiles.",
	}, []string{"plan"})

	Simulations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "urssaf",
		Name:      "simulations_total",
		Help:      "URSSAF simulations computed by activity.",
	}, []string{"activity"})

	InvoicesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "invoicing",
		Name:      "invoices_created_total",
		Help:      "Invoices created.",
	})

	Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Background jobs by type and result.",
	}, []string{"type", "result"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "comptalyze",
		Subsystem: "jobs",
		Name:      "queue_depth",
		Help:      "Jobs waiting or in progress in the Redis queue.",
	}, []string{"state"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comptalyze",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter.",
	}, []string{"limiter"})

	AssistantLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "comptalyze",
		Subsystem: "assistant",
		Name:      "completion_seconds",
		Help:      "Latency of assistant completions.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		WebhookEvents,
		PlanChanges,
		Simulations,
		InvoicesIssued,
		Jobs,
		QueueDepth,
		RateLimited,
		AssistantLatency,
	)
}
