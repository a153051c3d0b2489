package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

// Metrics implements webhook.Metrics using Prometheus.
type Metrics struct {
	eventsTotal            *prometheus.CounterVec
	processingDuration     *prometheus.HistogramVec
	usersCreatedTotal      *prometheus.CounterVec
	subscriptionsCreated   *prometheus.CounterVec
	subscriptionsCancelled *prometheus.CounterVec
	conflictsTotal         *prometheus.CounterVec
	replaysTotal           *prometheus.CounterVec
}

var _ webhook.Metrics = (*Metrics)(nil)

// NewMetrics registers the webhook collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of webhook deliveries by source, action and outcome.",
		}, []string{"source", "action", "outcome"}),

		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Duration of webhook pipeline runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		usersCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "users_created_total",
			Help:      "Total number of users provisioned from webhooks.",
		}, []string{"source"}),

		subscriptionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "subscriptions_created_total",
			Help:      "Total number of subscriptions activated from webhooks.",
		}, []string{"source"}),

		subscriptionsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "subscriptions_cancelled_total",
			Help:      "Total number of subscriptions cancelled from webhooks.",
		}, []string{"source"}),

		conflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "conflicts_total",
			Help:      "Unique constraint conflicts resolved by reloading the concurrent winner.",
		}, []string{"kind"}),

		replaysTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "replays_total",
			Help:      "Total number of event replays by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordEvent(source webhook.SourceFamily, action webhook.Action, outcome string) {
	m.eventsTotal.WithLabelValues(source.String(), action.String(), outcome).Inc()
}

func (m *Metrics) RecordProcessingDuration(source webhook.SourceFamily, d time.Duration) {
	m.processingDuration.WithLabelValues(source.String()).Observe(d.Seconds())
}

func (m *Metrics) RecordUserCreated(source webhook.SourceFamily) {
	m.usersCreatedTotal.WithLabelValues(source.String()).Inc()
}

func (m *Metrics) RecordSubscriptionCreated(source webhook.SourceFamily) {
	m.subscriptionsCreated.WithLabelValues(source.String()).Inc()
}

func (m *Metrics) RecordSubscriptionsCancelled(source webhook.SourceFamily, n int64) {
	if n <= 0 {
		return
	}
	m.subscriptionsCancelled.WithLabelValues(source.String()).Add(float64(n))
}

func (m *Metrics) RecordConflict(kind string) {
	m.conflictsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordReplay(outcome string) {
	m.replaysTotal.WithLabelValues(outcome).Inc()
}
