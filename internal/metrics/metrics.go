// Package metrics defines the companion's Prometheus collector, passed
// explicitly through internal/app's dependency struct rather than kept as
// package-level globals (grounded on the teacher's Dependencies-style
// injection, enriched by 99souls-ariadne's registry-backed provider).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the companion exports. A *Collector is
// always passed by reference from internal/app; nothing here is global.
type Collector struct {
	registry *prometheus.Registry
	handler  http.Handler

	QueueDepth          *prometheus.GaugeVec
	FramesDropped       *prometheus.CounterVec
	VerificationResults *prometheus.CounterVec
	FailsafeTriggers    *prometheus.CounterVec
	GPSAnomalyScore     prometheus.Gauge
	UplinkFailures      prometheus.Counter
}

// NewCollector builds a Collector backed by a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "queue_depth",
			Help:      "Current depth of a bounded pipeline queue.",
		}, []string{"queue"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped from a bounded queue under overflow.",
		}, []string{"queue"}),
		VerificationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "tracker_verification_results_total",
			Help:      "Hybrid tracker verification outcomes by status.",
		}, []string{"status"}),
		FailsafeTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "failsafe_triggers_total",
			Help:      "Safety failsafe triggers by subsystem.",
		}, []string{"subsystem"}),
		GPSAnomalyScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "gps_anomaly_score",
			Help:      "Current GPS-denial anomaly score.",
		}),
		UplinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "uplink_failures_total",
			Help:      "Ground-station uplink delivery failures.",
		}),
	}
	c.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return c
}

// Handler returns the HTTP handler serving /metrics.
func (c *Collector) Handler() http.Handler { return c.handler }
