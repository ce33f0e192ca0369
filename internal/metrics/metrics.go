package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Booking workflows
	workflowOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_workflow_total",
			Help: "Booking workflow executions by outcome (ok or error kind).",
		},
		[]string{"workflow", "outcome"},
	)
	fanOutFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_fanout_failures_total",
			Help: "Reservations that failed during a flight cancellation fan-out.",
		},
	)
	expiredReservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_reservations_expired_total",
			Help: "PENDING reservations failed by the payment timeout sweep.",
		},
	)

	// Kafka
	kafkaMessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_published_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
		[]string{"topic"},
	)
	kafkaMessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Inbound messages by event type and result.",
		},
		[]string{"event_type", "result"},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)
	publishDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_publish_dropped_total",
			Help: "Outbound events dropped because the publish buffer was full.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			workflowOutcomes,
			fanOutFailures,
			expiredReservations,

			kafkaMessagesPublished,
			kafkaMessagesConsumed,
			kafkaErrors,
			publishDropped,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Booking ---

// ObserveWorkflow counts one workflow run. outcome is "ok" or the error kind.
func ObserveWorkflow(workflow, outcome string) {
	workflowOutcomes.WithLabelValues(workflow, outcome).Inc()
}

func AddFanOutFailures(n int) {
	if n > 0 {
		fanOutFailures.Add(float64(n))
	}
}

func AddExpired(n int) {
	if n > 0 {
		expiredReservations.Add(float64(n))
	}
}

// --- Kafka ---
func IncKafkaPublished(topic string) { kafkaMessagesPublished.WithLabelValues(topic).Inc() }
func IncKafkaConsumed(eventType, result string) {
	kafkaMessagesConsumed.WithLabelValues(eventType, result).Inc()
}
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}
func IncPublishDropped() { publishDropped.Inc() }
