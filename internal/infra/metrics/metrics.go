// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries by gateway, canonical event type and outcome.",
		},
		[]string{"gateway", "event_type", "outcome"},
	)

	webhookLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_latency_ms",
			Help:    "Webhook processing latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000},
		},
		[]string{"gateway"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment ledger writes by status (approved/refunded/duplicate).",
		},
		[]string{"status"},
	)

	subscriptionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions moved past_due -> expired by the dunning sweeper.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			webhookEvents, webhookLatencyMs, paymentsTotal, subscriptionsExpired,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Outcome values used by the web layer.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeRejected  = "rejected" // bad signature / malformed payload
	OutcomeFailed    = "failed"   // reconcile error, gateway will retry
)

func ObserveWebhook(gateway, eventType, outcome string, latencyMs float64) {
	webhookEvents.WithLabelValues(norm(gateway), norm(eventType), outcome).Inc()
	webhookLatencyMs.WithLabelValues(norm(gateway)).Observe(latencyMs)
}

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncExpired() { subscriptionsExpired.Inc() }
