package scrape

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracking engine.
type Metrics struct {
	Registry           *prometheus.Registry
	ScrapesTotal       *prometheus.CounterVec
	ScrapeDuration     prometheus.Histogram
	PriceChecksTotal   *prometheus.CounterVec
	AlertsFiredTotal   prometheus.Counter
	JobExecutionsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_scrapes_total",
			Help: "Total scrape attempts by outcome.",
		},
		[]string{"outcome"},
	)
	scrapeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_scrape_duration_seconds",
			Help:    "Page fetch and extraction latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	priceChecks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_price_checks_total",
			Help: "Completed price checks by trigger (scheduled or manual).",
		},
		[]string{"trigger"},
	)
	alerts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_alerts_fired_total",
			Help: "Price drop alerts fanned out to notifiers.",
		},
	)
	jobRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_job_executions_total",
			Help: "Scheduled job executions by terminal status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(scrapes, scrapeDuration, priceChecks, alerts, jobRuns)

	return &Metrics{
		Registry:           registry,
		ScrapesTotal:       scrapes,
		ScrapeDuration:     scrapeDuration,
		PriceChecksTotal:   priceChecks,
		AlertsFiredTotal:   alerts,
		JobExecutionsTotal: jobRuns,
	}
}

// IncScrape increments the scrape counter for an outcome label.
func (m *Metrics) IncScrape(outcome string) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrapeDuration records one scrape latency sample.
func (m *Metrics) ObserveScrapeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}

// IncPriceCheck increments the completed-check counter for a trigger label.
func (m *Metrics) IncPriceCheck(trigger string) {
	if m == nil {
		return
	}
	m.PriceChecksTotal.WithLabelValues(trigger).Inc()
}

// IncAlert increments the fired-alert counter.
func (m *Metrics) IncAlert() {
	if m == nil {
		return
	}
	m.AlertsFiredTotal.Inc()
}

// IncJobExecution increments the job execution counter for a status label.
func (m *Metrics) IncJobExecution(status string) {
	if m == nil {
		return
	}
	m.JobExecutionsTotal.WithLabelValues(status).Inc()
}
