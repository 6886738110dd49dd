package coingecko

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
	return NewClient(&Config{BaseURL: server.URL, RateLimit: 6000, APIKey: "demo"}, logger)
}

func request(trade string, ts int64) models.LoadDataRequest {
	return models.LoadDataRequest{SourceID: Name, Ts: ts, MarketCurrency: "USD", TradeCurrency: trade}
}

func TestLoadPrices_PicksClosestPoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/coins/bitcoin/market_chart/range", r.URL.Path)
		assert.Equal(t, "usd", q.Get("vs_currency"))
		assert.Equal(t, "1514799610", q.Get("from"))
		assert.Equal(t, "1514803210", q.Get("to"))
		assert.Equal(t, "demo", r.Header.Get("x-cg-demo-api-key"))
		w.Write([]byte(`{"prices":[[1514800800000,13700.5],[1514801400000,13812.19],[1514802000000,13900]],"market_caps":[],"total_volumes":[]}`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request("BTC", 20180101101010)})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "13812.19000000", prices[0].Price.String())
	assert.Equal(t, Name, prices[0].SourceID)
	assert.Equal(t, int64(20180101101010), prices[0].Ts)
}

func TestLoadPrices_NoPointInWindow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[[1514700000000,13000]]}`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request("BTC", 20180101101010)})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestLoadPrices_UnknownCoinIsSkipped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for unmapped coin")
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request("NOPE", 20180101101010)})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestLoadPrices_ErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":{"error_code":10002,"error_message":"API key missing"}}`))
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request("ETH", 20180101101010)})

	var broken *types.BrokenAPIError
	require.ErrorAs(t, err, &broken)
	assert.Equal(t, "API key missing", broken.Message)
}

func TestLoadPrices_MalformedChart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[[1514801400000]]}`))
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{request("BTC", 20180101101010)})

	var broken *types.BrokenAPIError
	require.ErrorAs(t, err, &broken)
	assert.Equal(t, types.ErrorCodeParseError, broken.Code)
}
