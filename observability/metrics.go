package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the report pipeline: log pagination, event decoding
// and price resolution.
type PipelineMetrics struct {
	logPages       prometheus.Counter
	throttles      prometheus.Counter
	decodeSkips    prometheus.Counter
	priceFallbacks *prometheus.CounterVec
	reports        *prometheus.CounterVec
	reportDuration prometheus.Histogram
}

var (
	pipelineOnce     sync.Once
	pipelineRegistry *PipelineMetrics
)

// Pipeline returns the lazily-initialised pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineRegistry = &PipelineMetrics{
			logPages: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vaultscope",
				Subsystem: "logs",
				Name:      "pages_fetched_total",
				Help:      "Total log API pages fetched successfully.",
			}),
			throttles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vaultscope",
				Subsystem: "logs",
				Name:      "throttle_retries_total",
				Help:      "Count of page requests re-issued after a rate-limit response.",
			}),
			decodeSkips: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vaultscope",
				Subsystem: "ledger",
				Name:      "decode_skips_total",
				Help:      "Count of malformed operate logs skipped during ledger assembly.",
			}),
			priceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultscope",
				Subsystem: "prices",
				Name:      "fallbacks_total",
				Help:      "Count of symbols priced from the static fallback table.",
			}, []string{"symbol"}),
			reports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultscope",
				Subsystem: "report",
				Name:      "generated_total",
				Help:      "Report generations segmented by outcome.",
			}, []string{"outcome"}),
			reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "vaultscope",
				Subsystem: "report",
				Name:      "duration_seconds",
				Help:      "Latency distribution of full report generations.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			pipelineRegistry.logPages,
			pipelineRegistry.throttles,
			pipelineRegistry.decodeSkips,
			pipelineRegistry.priceFallbacks,
			pipelineRegistry.reports,
			pipelineRegistry.reportDuration,
		)
	})
	return pipelineRegistry
}

// RecordPage counts one successfully fetched log page.
func (m *PipelineMetrics) RecordPage() {
	if m == nil {
		return
	}
	m.logPages.Inc()
}

// RecordThrottle counts one rate-limited page retry.
func (m *PipelineMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}

// RecordDecodeSkip counts one malformed log skipped.
func (m *PipelineMetrics) RecordDecodeSkip() {
	if m == nil {
		return
	}
	m.decodeSkips.Inc()
}

// RecordPriceFallback counts a symbol served from the fallback table.
func (m *PipelineMetrics) RecordPriceFallback(symbol string) {
	if m == nil {
		return
	}
	if symbol == "" {
		symbol = "unknown"
	}
	m.priceFallbacks.WithLabelValues(symbol).Inc()
}

// RecordReport records the outcome and duration of a report generation.
// Outcomes should be stable strings such as "ok", "degraded" or "error" so
// dashboards stay consistent.
func (m *PipelineMetrics) RecordReport(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.reports.WithLabelValues(outcome).Inc()
	m.reportDuration.Observe(duration.Seconds())
}
