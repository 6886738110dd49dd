package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/cache"
	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
)

const testTs int64 = 20180101101010

func newKVStore(t *testing.T) (*KVStore, cache.Cache) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	c := cache.NewMemoryCache()
	return NewKVStore(c, "test:", logger, nil), c
}

func price(source, value string) models.HistoricalPrice {
	return models.HistoricalPrice{
		SourceID:       source,
		Ts:             testTs,
		MarketCurrency: "USDT",
		TradeCurrency:  "BTC",
		Price:          money.MustParse(value),
	}
}

func arg(source string, all bool) models.PriceArgument {
	return models.PriceArgument{
		Ts:                   testTs,
		MarketCurrency:       "USDT",
		TradeCurrency:        "BTC",
		SourceID:             source,
		RequiredAllSourceIDs: all,
	}
}

func TestKVStore_SaveIsIdempotent(t *testing.T) {
	s, c := newKVStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("CRYPTOCOMPARE", "100"), price("BINANCE", "200")}))
	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("BINANCE", "200")}))
	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("BINANCE", "200")}))

	members, err := c.SMembers(ctx, "test:20180101101010:USDT:BTC#sources")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	result, err := s.FindPrices(ctx, []models.PriceArgument{arg("", false)})
	require.NoError(t, err)
	assert.Equal(t, "150.00000000", result.Get(testTs, "USDT", "BTC").Avg.Price.String())
}

func TestKVStore_AverageIsExact(t *testing.T) {
	s, _ := newKVStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{
		price("A", "1.00000000"),
		price("B", "2.00000000"),
		price("C", "2.00000000"),
	}))

	result, err := s.FindPrices(ctx, []models.PriceArgument{arg("", true)})
	require.NoError(t, err)

	entry := result.Get(testTs, "USDT", "BTC")
	require.NotNil(t, entry.Avg)
	assert.Equal(t, "1.66666667", entry.Avg.Price.String())
	assert.Len(t, entry.Sources, 3)
	assert.Equal(t, "2.00000000", entry.Sources["B"].Price.String())
}

func TestKVStore_OverwriteRecomputesAverage(t *testing.T) {
	s, _ := newKVStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("A", "10"), price("B", "20")}))
	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("B", "30")}))

	result, err := s.FindPrices(ctx, []models.PriceArgument{arg("B", false)})
	require.NoError(t, err)

	entry := result.Get(testTs, "USDT", "BTC")
	assert.Equal(t, "20.00000000", entry.Avg.Price.String())
	assert.Equal(t, "30.00000000", entry.Sources["B"].Price.String())
}

func TestKVStore_FilterEmptyPrices(t *testing.T) {
	s, _ := newKVStore(t)
	ctx := context.Background()
	sources := []string{"CRYPTOCOMPARE", "BINANCE", "COINBASE"}

	other := arg("", false)
	other.TradeCurrency = "ETH"
	args := []models.PriceArgument{arg("", false), arg("BINANCE", false), other}

	gaps, err := s.FilterEmptyPrices(ctx, args, sources)
	require.NoError(t, err)
	// BTC: three sources, the BINANCE-qualified arg is the same gap; ETH: three sources.
	assert.Len(t, gaps, 6)

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("BINANCE", "1")}))

	gaps, err = s.FilterEmptyPrices(ctx, []models.PriceArgument{arg("", false)}, sources)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.LoadDataRequest{
		{SourceID: "CRYPTOCOMPARE", Ts: testTs, MarketCurrency: "USDT", TradeCurrency: "BTC"},
		{SourceID: "COINBASE", Ts: testTs, MarketCurrency: "USDT", TradeCurrency: "BTC"},
	}, gaps)

	gaps, err = s.FilterEmptyPrices(ctx, []models.PriceArgument{arg("BINANCE", false)}, sources)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestKVStore_FindPricesShape(t *testing.T) {
	s, _ := newKVStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("CRYPTOCOMPARE", "6500")}))

	missing := arg("", false)
	missing.TradeCurrency = "ETH"
	result, err := s.FindPrices(ctx, []models.PriceArgument{arg("", false), missing})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"20180101101010":{"USDT":{"BTC":{"avg":{"price":"6500.00000000"}},"ETH":{"avg":null}}}}`, string(data))
}

func TestKVStore_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	config := cache.DefaultRedisConfig()
	config.URL = "redis://" + mr.Addr()

	ctx := context.Background()
	c, err := cache.NewRedisCache(ctx, config, nil)
	require.NoError(t, err)
	defer c.Close()

	logger, _ := logtest.NewNullLogger()
	s := NewKVStore(c, config.KeyPrefix, logger, nil)

	require.NoError(t, s.SavePrices(ctx, []models.HistoricalPrice{price("A", "0.1"), price("B", "0.2")}))

	stored, err := mr.Get("pricing:20180101101010:USDT:BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.15000000", stored)

	result, err := s.FindPrices(ctx, []models.PriceArgument{arg("A", false)})
	require.NoError(t, err)
	assert.Equal(t, "0.10000000", result.Get(testTs, "USDT", "BTC").Sources["A"].Price.String())
}

func TestKVStore_CanceledSave(t *testing.T) {
	s, _ := newKVStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SavePrices(ctx, []models.HistoricalPrice{price("A", "1")})
	assert.ErrorIs(t, err, context.Canceled)
}
