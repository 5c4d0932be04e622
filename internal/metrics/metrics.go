package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixhub",
			Name:      "booking_transitions_total",
			Help:      "Successful booking status transitions.",
		},
		[]string{"from", "to", "actor"},
	)

	forcedTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixhub",
			Name:      "booking_forced_transitions_total",
			Help:      "Transitions applied through the admin/system override.",
		},
		[]string{"to", "actor"},
	)

	invalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixhub",
			Name:      "booking_invalid_transitions_total",
			Help:      "Rejected transitions that violated the lifecycle table.",
		},
		[]string{"from", "to"},
	)

	publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixhub",
			Name:      "event_publish_failures_total",
			Help:      "Fan-out publish failures by topic kind.",
		},
		[]string{"topic_kind"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, forcedTransitions, invalidTransitions, publishFailures)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTransition(from, to, actor string) {
	transitions.WithLabelValues(from, to, actor).Inc()
}

func IncForcedTransition(to, actor string) {
	forcedTransitions.WithLabelValues(to, actor).Inc()
}

func IncInvalidTransition(from, to string) {
	invalidTransitions.WithLabelValues(from, to).Inc()
}

func IncPublishFailure(topicKind string) {
	publishFailures.WithLabelValues(topicKind).Inc()
}
