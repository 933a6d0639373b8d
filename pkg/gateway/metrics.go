package gateway

import "github.com/prometheus/client_golang/prometheus"

// Filter outcome label values.
const (
	OutcomeFiltered   = "filtered"
	OutcomeUnmodified = "unmodified"
	OutcomeParseError = "parse_error"
	OutcomePanic      = "panic"
)

// Metrics holds the Prometheus instruments shared by the gateway
// middlewares.
type Metrics struct {
	filterOutcomes *prometheus.CounterVec
	fieldsRedacted prometheus.Counter
	filterDuration prometheus.Histogram
	securityEvents *prometheus.CounterVec
	trackedClients prometheus.Gauge
}

// NewMetrics creates and registers the gateway metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		filterOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veilgate_filter_responses_total",
				Help: "Intercepted responses by filtering outcome",
			},
			[]string{"outcome"},
		),
		fieldsRedacted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "veilgate_fields_redacted_total",
				Help: "Object fields structurally removed from responses",
			},
		),
		filterDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "veilgate_filter_duration_seconds",
				Help:    "Time spent parsing, filtering, and re-serializing bodies",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		securityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veilgate_security_events_total",
				Help: "Security events emitted by the request monitor",
			},
			[]string{"event_type"},
		),
		trackedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "veilgate_tracked_clients",
				Help: "Client identifiers currently held by the rate tracker",
			},
		),
	}

	reg.MustRegister(
		m.filterOutcomes,
		m.fieldsRedacted,
		m.filterDuration,
		m.securityEvents,
		m.trackedClients,
	)
	return m
}
