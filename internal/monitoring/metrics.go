package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pricing service collectors. A nil *Metrics records nothing.
type Metrics struct {
	// Aggregation metrics
	engineRequestsTotal *prometheus.CounterVec

	// Loader metrics
	loaderRequestsTotal *prometheus.CounterVec
	loaderDuration      *prometheus.HistogramVec

	// Store metrics
	storeOperationDuration *prometheus.HistogramVec
	storeErrorsTotal       *prometheus.CounterVec

	// Cache metrics
	cacheOperationsTotal *prometheus.CounterVec

	// Real-time metrics
	realtimeUpdatesTotal *prometheus.CounterVec
	activeSubscriptions  *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.engineRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_historical_requests_total",
			Help: "Total number of historical price requests",
		},
		[]string{"outcome"},
	)

	m.loaderRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_loader_requests_total",
			Help: "Total number of loader calls per source",
		},
		[]string{"source", "outcome"},
	)

	m.loaderDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_loader_duration_seconds",
			Help:    "Loader call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	m.storeOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_store_operation_duration_seconds",
			Help:    "Price store operation duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0},
		},
		[]string{"backend", "operation"},
	)

	m.storeErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_store_errors_total",
			Help: "Total number of failed price store operations",
		},
		[]string{"backend", "operation"},
	)

	m.cacheOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	m.realtimeUpdatesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_realtime_updates_total",
			Help: "Total number of real-time price updates",
		},
		[]string{"source"},
	)

	m.activeSubscriptions = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricing_active_subscriptions",
			Help: "Number of live change subscriptions",
		},
		[]string{"kind"},
	)

	return m
}

func (m *Metrics) RecordEngineRequest(outcome string) {
	if m == nil {
		return
	}
	m.engineRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLoaderCall(source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.loaderRequestsTotal.WithLabelValues(source, outcome).Inc()
	m.loaderDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) RecordStoreOperation(backend, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
}

func (m *Metrics) RecordCacheOperation(operation, result string) {
	if m == nil {
		return
	}
	m.cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordRealtimeUpdate(source string) {
	if m == nil {
		return
	}
	m.realtimeUpdatesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SetActiveSubscriptions(kind string, n int64) {
	if m == nil {
		return
	}
	m.activeSubscriptions.WithLabelValues(kind).Set(float64(n))
}
