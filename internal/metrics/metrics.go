package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the two services export. Components accept
// a nil *Metrics and skip recording.
type Metrics struct {
	PaymentsCreated    prometheus.Counter
	PaymentTransitions *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	PublishQueueDepth  prometheus.Gauge
	BrokerConnected    *prometheus.GaugeVec
	MessagesConsumed   *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
	ConsumerRestarts   prometheus.Counter
	HandlerLatency     prometheus.Histogram
	HTTPDuration       *prometheus.HistogramVec
	PanicsRecovered    prometheus.Counter
	IdempotentReplays  prometheus.Counter
	registry           *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		PaymentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Total number of payments created",
		}),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_processed_total",
			Help: "Payment status transitions by target status",
		}, []string{"status"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_events_published_total",
			Help: "Payment success events by publish outcome",
		}, []string{"result"}),
		PublishQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payment_events_queue_depth",
			Help: "Events waiting for the publisher goroutine",
		}),
		BrokerConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rabbitmq_connections",
			Help: "1 when the component holds an open broker connection",
		}, []string{"component"}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_messages_consumed_total",
			Help: "Broker deliveries by handling outcome",
		}, []string{"outcome"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications created",
		}, []string{"type", "status"}),
		ConsumerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_consumer_restarts_total",
			Help: "Times the supervisor restarted the consumer",
		}),
		HandlerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_handle_seconds",
			Help:    "Time spent turning one delivery into a notification",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		PanicsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Handler panics turned into 500 responses",
		}),
		IdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Responses served from the Idempotency-Key cache",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.PaymentsCreated, m.PaymentTransitions, m.EventsPublished, m.PublishQueueDepth,
		m.BrokerConnected, m.MessagesConsumed, m.NotificationsSent, m.ConsumerRestarts,
		m.HandlerLatency, m.HTTPDuration, m.PanicsRecovered, m.IdempotentReplays,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PaymentCreated() {
	if m != nil {
		m.PaymentsCreated.Inc()
	}
}

func (m *Metrics) PaymentTransitioned(status string) {
	if m != nil {
		m.PaymentTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) EventPublished(result string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.PublishQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetBrokerConnected(component string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.BrokerConnected.WithLabelValues(component).Set(v)
}

func (m *Metrics) MessageConsumed(outcome string) {
	if m != nil {
		m.MessagesConsumed.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) NotificationCreated(notificationType, status string) {
	if m != nil {
		m.NotificationsSent.WithLabelValues(notificationType, status).Inc()
	}
}

func (m *Metrics) ConsumerRestarted() {
	if m != nil {
		m.ConsumerRestarts.Inc()
	}
}

func (m *Metrics) ObserveHandle(d time.Duration) {
	if m != nil {
		m.HandlerLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

func (m *Metrics) PanicRecovered() {
	if m != nil {
		m.PanicsRecovered.Inc()
	}
}

func (m *Metrics) IdempotentReplay() {
	if m != nil {
		m.IdempotentReplays.Inc()
	}
}
