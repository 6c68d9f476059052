package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Conversation metrics
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_turns_total",
			Help: "Total number of conversation turns",
		},
		[]string{"state", "outcome"}, // outcome: success|error|ignored
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopbot_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"state"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_state_transitions_total",
			Help: "Conversation state transitions",
		},
		[]string{"from", "to"},
	)

	// Telegram metrics
	TelegramUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_telegram_updates_total",
			Help: "Inbound Telegram updates by event kind",
		},
		[]string{"kind"}, // kind: reset|text|callback|unsupported
	)

	TelegramSendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_telegram_send_errors_total",
			Help: "Failed outbound Telegram calls",
		},
		[]string{"method"},
	)

	// Catalog backend metrics
	CatalogCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_catalog_calls_total",
			Help: "Total number of catalog backend calls",
		},
		[]string{"endpoint", "status"}, // status: HTTP code, "transport" or "circuit_open"
	)

	CatalogLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopbot_catalog_latency_seconds",
			Help:    "Catalog backend call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	CatalogConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbot_catalog_create_conflicts_total",
			Help: "get-or-create conflicts by resource and resolution",
		},
		[]string{"resource", "resolution"}, // resolution: reconciled|unresolved
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopbot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Turns)
		prometheus.MustRegister(TurnDuration)
		prometheus.MustRegister(Transitions)

		prometheus.MustRegister(TelegramUpdates)
		prometheus.MustRegister(TelegramSendErrors)

		prometheus.MustRegister(CatalogCalls)
		prometheus.MustRegister(CatalogLatency)
		prometheus.MustRegister(CatalogConflicts)
		prometheus.MustRegister(CircuitBreakerState)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// StateUnknown labels turns whose session could not be read
const StateUnknown = "unknown"

// RecordTurn records a finished conversation turn
func RecordTurn(from, to string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	Turns.WithLabelValues(from, outcome).Inc()
	TurnDuration.WithLabelValues(from).Observe(duration.Seconds())

	if err == nil {
		Transitions.WithLabelValues(from, to).Inc()
	}
}

// RecordIgnoredTurn records an event that was dropped without a transition
func RecordIgnoredTurn(state string) {
	Turns.WithLabelValues(state, "ignored").Inc()
}

// RecordCatalogCall records a catalog backend call
func RecordCatalogCall(endpoint, status string, latency time.Duration) {
	CatalogCalls.WithLabelValues(endpoint, status).Inc()
	CatalogLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordCatalogConflict records how a create conflict was resolved
func RecordCatalogConflict(resource string, reconciled bool) {
	resolution := "reconciled"
	if !reconciled {
		resolution = "unresolved"
	}
	CatalogConflicts.WithLabelValues(resource, resolution).Inc()
}
