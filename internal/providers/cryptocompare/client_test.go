package cryptocompare

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
	client, err := NewClient(&Config{APIKey: "key", BaseURL: server.URL, RateLimit: 6000}, logger)
	require.NoError(t, err)
	return client
}

var btcRequest = models.LoadDataRequest{SourceID: Name, Ts: 20180101101010, MarketCurrency: "USDT", TradeCurrency: "BTC"}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewClient(&Config{}, logger)

	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, Name, cfgErr.Source)
}

func TestLoadPrices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pricehistorical", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USDT", r.URL.Query().Get("tsyms"))
		assert.Equal(t, "1514801410", r.URL.Query().Get("ts"))
		assert.Equal(t, "Apikey key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"BTC":{"USDT":13812.19}}`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{btcRequest})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, Name, prices[0].SourceID)
	assert.Equal(t, "13812.19000000", prices[0].Price.String())
	assert.Equal(t, btcRequest.Tuple(), prices[0].Tuple())
}

func TestLoadPrices_ZeroMeansNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"BTC":{"USDT":0}}`))
	})

	prices, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{btcRequest})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestLoadPrices_ErrorPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"Error","Message":"fsym param is invalid"}`))
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{btcRequest})

	var broken *types.BrokenAPIError
	require.ErrorAs(t, err, &broken)
	assert.Equal(t, "fsym param is invalid", broken.Message)
}

func TestLoadPrices_UnexpectedShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ETH":{"USDT":1}}`))
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{btcRequest})
	assert.Equal(t, "broken_api", types.ErrorKind(err))
}

func TestLoadPrices_ServerDown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.LoadPrices(context.Background(), []models.LoadDataRequest{btcRequest})
	assert.Equal(t, "communication", types.ErrorKind(err))
}
