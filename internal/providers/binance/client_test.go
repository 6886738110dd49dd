package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := logtest.NewNullLogger()
	return NewClient(&Config{BaseURL: server.URL, RateLimit: 6000}, logger)
}

func request(ts int64) models.LoadDataRequest {
	return models.LoadDataRequest{SourceID: Name, Ts: ts, MarketCurrency: "USDT", TradeCurrency: "BTC"}
}

func TestLoadPrices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1m", q.Get("interval"))
		assert.Equal(t, "1514801400000", q.Get("startTime"))
		assert.Equal(t, "1", q.Get("limit"))
		w.Write([]byte(`[[1514801400000,"13800.00","13850.00","13790.00","13812.19","12.5",1514801459999,"0",10,"0","0","0"]]`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request(20180101101010)})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "13812.19000000", prices[0].Price.String())
	assert.Equal(t, Name, prices[0].SourceID)
}

func TestLoadPrices_SkipsPreEpoch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected before epoch")
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request(20160101000000)})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestLoadPrices_NoKlines(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request(20180101101010)})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestLoadPrices_InvalidSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request(20180101101010)})

	var broken *types.BrokenAPIError
	require.ErrorAs(t, err, &broken)
	assert.Equal(t, "Invalid symbol. (code -1121)", broken.Message)
}

func TestKlineResponse_Close(t *testing.T) {
	_, err := KlineResponse{1.0, "1"}.Close()
	assert.ErrorIs(t, err, ErrInvalidKlineResponse)

	_, err = KlineResponse{1.0, "1", "1", "1", 5.5}.Close()
	assert.ErrorIs(t, err, ErrInvalidKlineResponse)
}
