// Package metrics exposes the Prometheus instrumentation for a dispatch
// run: per-probe RTT, the calibration estimate chosen per endpoint, the
// drift observed at each scheduled release, and cycle outcomes. Grounded in
// the client_golang usage shown across the example pack (registered
// collectors served over an HTTP handler); this core has no prior
// instrumentation to adapt, so the collector set is new.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatcher"

// Metrics bundles the collectors the scheduler and calibrator update over
// the lifetime of one process.
type Metrics struct {
	registry *prometheus.Registry

	ProbeRTT          *prometheus.HistogramVec
	CalibrationDelay  *prometheus.GaugeVec
	CalibrationJitter *prometheus.GaugeVec
	DispatchDriftUs   *prometheus.HistogramVec
	CycleOutcomes     *prometheus.CounterVec
}

// New builds a Metrics bundle registered against a fresh registry, so a
// caller that never serves /metrics pays no global-registry cost.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ProbeRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_rtt_milliseconds",
			Help:      "Observed round-trip time of calibration probes.",
			Buckets:   []float64{5, 10, 20, 30, 40, 50, 75, 100, 150, 250, 500, 1000},
		}, []string{"endpoint"}),
		CalibrationDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_estimated_delay_milliseconds",
			Help:      "Most recent calibration delay estimate chosen for an endpoint.",
		}, []string{"endpoint", "estimator"}),
		CalibrationJitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_jitter_milliseconds",
			Help:      "P90 minus P50 of the most recent calibration's post-warmup samples.",
		}, []string{"endpoint"}),
		DispatchDriftUs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_drift_microseconds",
			Help:      "Microsecond drift between a scheduled release time and its actual dispatch.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		}, []string{"endpoint"}),
		CycleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_outcomes_total",
			Help:      "Count of dispatch outcomes: one per scheduled cycle, one per order in continuous mode.",
		}, []string{"endpoint", "outcome"}),
	}

	reg.MustRegister(m.ProbeRTT, m.CalibrationDelay, m.CalibrationJitter, m.DispatchDriftUs, m.CycleOutcomes)
	return m
}

// Handler returns the HTTP handler to mount at the metrics address.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. It blocks until the
// server returns (normally only on error or process shutdown), matching the
// teacher's pattern of a dedicated background listener for auxiliary
// interfaces.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
