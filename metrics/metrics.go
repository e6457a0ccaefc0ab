package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coupon"

// Allocation results.
const (
	AllocationAllocated        = "allocated"
	AllocationReplayed         = "replayed"
	AllocationConflictResolved = "conflict_resolved"
	AllocationExhausted        = "exhausted"
	AllocationStoreError       = "store_error"
	AllocationRejected         = "rejected"
)

// Webhook outcomes.
const (
	WebhookAccepted  = "accepted"
	WebhookRejected  = "rejected"
	WebhookQueueFull = "queue_full"
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookFailed    = "failed"
)

// Event type labels for deliveries that never reach a registered handler.
const (
	EventTypeUnparsed     = "unparsed"
	EventTypeUnrecognized = "unrecognized"
)

// Metrics is safe to use as a nil pointer; every method then does nothing.
type Metrics struct {
	registerer        prometheus.Registerer
	allocations       *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	gatewayChecks     *prometheus.CounterVec
	rateLimited       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registerer: reg,
		allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation attempts by result.",
		}, []string{"result"}),
		webhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook requests by ingress outcome.",
		}, []string{"outcome"}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Processed webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		gatewayChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_verifications_total",
			Help:      "Gateway payment verifications by normalised status.",
		}, []string{"status"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Coupon requests rejected by the rate limiter.",
		}),
	}
}

// RegisterQueueDepth exposes the webhook job queue length. Call it once per registry.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "webhook_queue_depth",
		Help:      "Webhook deliveries waiting for a worker.",
	}, func() float64 { return float64(depth()) })
}

func (m *Metrics) Allocation(result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) GatewayVerification(status string) {
	if m == nil {
		return
	}
	m.gatewayChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
