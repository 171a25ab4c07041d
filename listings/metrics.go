package listings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the search client.
type Metrics struct {
	Registry        *prometheus.Registry
	SearchesTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RowsFetched     prometheus.Counter
	RowsDropped     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_searches_total",
			Help: "Total ZIP searches issued, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "listings_request_duration_seconds",
			Help:    "HTTP request latency against the listings source.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rowsFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "listings_rows_fetched_total",
			Help: "Total result rows returned to the pipeline.",
		},
	)
	rowsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_rows_dropped_total",
			Help: "Total result rows dropped before reaching the pipeline.",
		},
		[]string{"reason"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_errors_total",
			Help: "Total search client errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(searches, requestDuration, rowsFetched, rowsDropped, errorsTotal)

	return &Metrics{
		Registry:        registry,
		SearchesTotal:   searches,
		RequestDuration: requestDuration,
		RowsFetched:     rowsFetched,
		RowsDropped:     rowsDropped,
		ErrorsTotal:     errorsTotal,
	}
}

// IncSearch increments the searches counter for an outcome label.
func (m *Metrics) IncSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRows increments the fetched rows counter.
func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsFetched.Add(float64(n))
}

// IncDropped increments the dropped rows counter for a reason label.
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.RowsDropped.WithLabelValues(reason).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
