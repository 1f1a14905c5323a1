package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback engine and
// the daemon that hosts it. All recording methods are safe on a nil receiver
// so engine components can run without metrics (e.g. in tests).
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	fetchesTotal            prometheus.Counter
	fetchErrorsTotal        prometheus.Counter
	bytesFetchedTotal       prometheus.Counter
	segmentsAppendedTotal   prometheus.Counter
	renditionSwitchesTotal  prometheus.Counter
	bandwidthEstimateBitsPS prometheus.Gauge
	activeEngines           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playback engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_http_requests_total",
		Help: "Total number of HTTP requests received by the daemon",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	fetchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_fetches_total",
		Help: "Total number of manifest, playlist and segment fetches started",
	})
	fetchErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_fetch_errors_total",
		Help: "Total number of fetches that failed (network error or bad status)",
	})
	bytesFetchedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_bytes_fetched_total",
		Help: "Total number of media bytes fetched",
	})
	segmentsAppendedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_segments_appended_total",
		Help: "Total number of media segments appended to a sink",
	})
	renditionSwitchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_rendition_switches_total",
		Help: "Total number of adaptive rendition switches after initial selection",
	})
	bandwidthEstimateBitsPS := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_bandwidth_estimate_bits_per_second",
		Help: "Current corrected bandwidth estimate in bits per second",
	})
	activeEngines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_engines",
		Help: "Number of playback engines that have not been destroyed",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		fetchesTotal,
		fetchErrorsTotal,
		bytesFetchedTotal,
		segmentsAppendedTotal,
		renditionSwitchesTotal,
		bandwidthEstimateBitsPS,
		activeEngines,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		fetchesTotal:            fetchesTotal,
		fetchErrorsTotal:        fetchErrorsTotal,
		bytesFetchedTotal:       bytesFetchedTotal,
		segmentsAppendedTotal:   segmentsAppendedTotal,
		renditionSwitchesTotal:  renditionSwitchesTotal,
		bandwidthEstimateBitsPS: bandwidthEstimateBitsPS,
		activeEngines:           activeEngines,
	}
}

// IncRequests increments the total HTTP request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncFetches increments the fetch counter.
func (m *Metrics) IncFetches() {
	if m == nil {
		return
	}
	m.fetchesTotal.Inc()
}

// IncFetchErrors increments the failed-fetch counter.
func (m *Metrics) IncFetchErrors() {
	if m == nil {
		return
	}
	m.fetchErrorsTotal.Inc()
}

// AddBytesFetched adds n to the fetched-bytes counter.
func (m *Metrics) AddBytesFetched(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesFetchedTotal.Add(float64(n))
}

// IncSegmentsAppended increments the appended-segment counter.
func (m *Metrics) IncSegmentsAppended() {
	if m == nil {
		return
	}
	m.segmentsAppendedTotal.Inc()
}

// IncRenditionSwitches increments the rendition switch counter.
func (m *Metrics) IncRenditionSwitches() {
	if m == nil {
		return
	}
	m.renditionSwitchesTotal.Inc()
}

// SetBandwidthEstimate records the current corrected estimate in bits/s.
func (m *Metrics) SetBandwidthEstimate(bps float64) {
	if m == nil {
		return
	}
	m.bandwidthEstimateBitsPS.Set(bps)
}

// EngineStarted increments the active engine gauge.
func (m *Metrics) EngineStarted() {
	if m == nil {
		return
	}
	m.activeEngines.Inc()
}

// EngineStopped decrements the active engine gauge.
func (m *Metrics) EngineStopped() {
	if m == nil {
		return
	}
	m.activeEngines.Dec()
}

// SetActiveEngines overwrites the active engine gauge; called before each
// scrape so the registry's count is authoritative.
func (m *Metrics) SetActiveEngines(n int) {
	if m == nil {
		return
	}
	m.activeEngines.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
