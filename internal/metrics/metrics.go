// Package metrics exposes scan pipeline counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/j-veylop/complyscan/internal/models"
)

const namespace = "complyscan"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	filesScanned   prometheus.Counter
	paidCalls      prometheus.Counter
	spend          prometheus.Counter
	rateLimited    *prometheus.CounterVec
	detectorErrors *prometheus.CounterVec
	costPrompts    *prometheus.CounterVec
	scans          *prometheus.CounterVec
	violations     *prometheus.CounterVec
	activeScans    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		filesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Files processed by the scan pipeline.",
		}),
		paidCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_calls_total",
			Help:      "Calls made to the paid detector.",
		}),
		spend: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_usd_total",
			Help:      "Paid detector spend in US dollars.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Paid detector calls skipped by the rate limiter.",
		}, []string{"window"}),
		detectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_errors_total",
			Help:      "Per-file detector and read failures.",
		}, []string{"stage"}),
		costPrompts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_prompts_total",
			Help:      "Cost limit prompts by outcome.",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Finished scans by terminal status.",
		}, []string{"status"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Persisted violations by severity.",
		}, []string{"severity"}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scans",
			Help:      "Scans currently running.",
		}),
	}

	collectors := []prometheus.Collector{
		m.filesScanned, m.paidCalls, m.spend, m.rateLimited, m.detectorErrors,
		m.costPrompts, m.scans, m.violations, m.activeScans,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) FileScanned() {
	if m == nil {
		return
	}
	m.filesScanned.Inc()
}

// PaidCall records one paid detector call and what it cost.
func (m *Metrics) PaidCall(cost float64) {
	if m == nil {
		return
	}
	m.paidCalls.Inc()
	if cost > 0 {
		m.spend.Add(cost)
	}
}

func (m *Metrics) RateLimited(window string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(window).Inc()
}

// DetectorError records a per-file failure. stage is one of read, regex, llm.
func (m *Metrics) DetectorError(stage string) {
	if m == nil {
		return
	}
	m.detectorErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) CostPrompt(outcome string) {
	if m == nil {
		return
	}
	m.costPrompts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.activeScans.Inc()
}

// ScanFinished records the terminal status of a scan and its findings.
func (m *Metrics) ScanFinished(status models.ScanStatus, violations []models.Violation) {
	if m == nil {
		return
	}
	m.activeScans.Dec()
	m.scans.WithLabelValues(string(status)).Inc()
	for _, v := range violations {
		m.violations.WithLabelValues(v.Severity.String()).Inc()
	}
}
