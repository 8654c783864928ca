package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for sync runs.
type Metrics struct {
	windowsFetched *prometheus.CounterVec
	windowFailures *prometheus.CounterVec
	stepHalvings   *prometheus.CounterVec
	eventsInserted *prometheus.CounterVec
	syncAborts     *prometheus.CounterVec
	watermark      *prometheus.GaugeVec
}

// NewMetrics registers the sync collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"chain_id", "event"}
	return &Metrics{
		windowsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govwatch_sync_windows_total",
			Help: "Block windows fetched successfully",
		}, labels),
		windowFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govwatch_sync_window_failures_total",
			Help: "Block window fetches that failed with a transient error",
		}, labels),
		stepHalvings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govwatch_sync_step_halvings_total",
			Help: "Times the window step was halved",
		}, labels),
		eventsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govwatch_sync_events_inserted_total",
			Help: "New events persisted by the fetcher",
		}, labels),
		syncAborts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govwatch_sync_aborts_total",
			Help: "Sync runs aborted after the step dropped below the minimum",
		}, labels),
		watermark: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govwatch_sync_watermark_block",
			Help: "Last fully processed block",
		}, labels),
	}
}

func (m *Metrics) windowFetched(labels []string, inserted int) {
	if m == nil {
		return
	}
	m.windowsFetched.WithLabelValues(labels...).Inc()
	m.eventsInserted.WithLabelValues(labels...).Add(float64(inserted))
}

func (m *Metrics) windowFailed(labels []string) {
	if m == nil {
		return
	}
	m.windowFailures.WithLabelValues(labels...).Inc()
}

func (m *Metrics) stepHalved(labels []string) {
	if m == nil {
		return
	}
	m.stepHalvings.WithLabelValues(labels...).Inc()
}

func (m *Metrics) aborted(labels []string) {
	if m == nil {
		return
	}
	m.syncAborts.WithLabelValues(labels...).Inc()
}

func (m *Metrics) watermarkSet(labels []string, block uint64) {
	if m == nil {
		return
	}
	m.watermark.WithLabelValues(labels...).Set(float64(block))
}
