package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordLoaderCall("BINANCE", "success", 10*time.Millisecond)
	m.RecordLoaderCall("BINANCE", "success", 20*time.Millisecond)
	m.RecordLoaderCall("COINBASE", "broken_api", time.Millisecond)
	m.RecordStoreOperation("redis", "save", errors.New("down"), time.Millisecond)
	m.RecordStoreOperation("redis", "find", nil, time.Millisecond)
	m.SetActiveSubscriptions("price", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loaderRequestsTotal.WithLabelValues("BINANCE", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loaderRequestsTotal.WithLabelValues("COINBASE", "broken_api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrorsTotal.WithLabelValues("redis", "save")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.storeErrorsTotal.WithLabelValues("redis", "find")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSubscriptions.WithLabelValues("price")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEngineRequest("ok")
		m.RecordLoaderCall("X", "success", time.Second)
		m.RecordStoreOperation("memory", "save", nil, time.Second)
		m.RecordCacheOperation("get", "hit")
		m.RecordRealtimeUpdate("X")
		m.SetActiveSubscriptions("rate", 1)
	})
}
