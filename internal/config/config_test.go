package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/types"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, []string{SourceCryptoCompare, SourceBinance, SourceCoinbase}, cfg.Storage.PriorityList)
	assert.Equal(t, AggregatedSourceID, cfg.Realtime.AggregatedSourceID)
	assert.Equal(t, "@every 5m", cfg.Realtime.SyncSchedule)
	assert.Equal(t, time.Second, cfg.Realtime.RateWatchInterval)
	assert.False(t, cfg.Ingest.Enabled)
	assert.Len(t, cfg.Providers.List(), 4)
	assert.False(t, cfg.Providers.CoinGecko.Enabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_PRIORITY", "BINANCE, COINBASE")
	t.Setenv("BINANCE_ENABLED", "false")
	t.Setenv("REALTIME_RATE_WATCH_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"BINANCE", "COINBASE"}, cfg.Storage.PriorityList)
	assert.False(t, cfg.Providers.Binance.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.RateWatchInterval)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "mongo")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", BackendPostgres)
		_, err := Load()

		var cfgErr *types.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "POSTGRES_DSN", cfgErr.Setting)
	})

	t.Run("bad log format", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "xml")
		_, err := Load()
		assert.Error(t, err)
	})
}
