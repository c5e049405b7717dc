package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the server's Prometheus collectors.
type metrics struct {
	waves               prometheus.Counter
	patchesSent         prometheus.Counter
	patchBytes          prometheus.Counter
	activeSessions      prometheus.Gauge
	hydrationMismatches prometheus.Counter
	flushDuration       prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		waves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "waves_total",
			Help:      "Total number of update passes processed across sessions",
		}),

		patchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "patches_sent_total",
			Help:      "Total number of patches streamed to clients",
		}),

		patchBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "patch_bytes_total",
			Help:      "Total encoded patch payload bytes streamed to clients",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "active_sessions",
			Help:      "Number of connected WebSocket sessions",
		}),

		hydrationMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "hydration_mismatches_total",
			Help:      "Subtrees replaced during hydration against a stored snapshot",
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "live",
			Name:      "flush_duration_seconds",
			Help:      "Duration of one update pass including patch encoding",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
