package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	PagesTotal        *prometheus.CounterVec
	ItemsScrapedTotal prometheus.Counter
	ItemsSkippedTotal prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Catalogue pages processed, by status.",
		},
		[]string{"status"},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of items sent to the pipeline.",
		},
	)
	itemsSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_skipped_total",
			Help: "Malformed items dropped under the item parse policy.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "ETL runs by outcome.",
		},
		[]string{"outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_stage_duration_seconds",
			Help:    "Duration of each ETL stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	registry.MustRegister(requests, requestDuration, pages, itemsScraped, itemsSkipped, errorsTotal, runs, stageDuration)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		PagesTotal:        pages,
		ItemsScrapedTotal: itemsScraped,
		ItemsSkippedTotal: itemsSkipped,
		ErrorsTotal:       errorsTotal,
		RunsTotal:         runs,
		StageDuration:     stageDuration,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage counts a processed page.
func (m *Metrics) IncPage(status string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(status).Inc()
}

// AddItems increments the items scraped counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// AddSkipped increments the skipped items counter.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsSkippedTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long an ETL stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
