package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
)

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) SourceID() string {
	return "CRYPTOCOMPARE"
}

func (m *MockLoader) LoadPrices(ctx context.Context, requests []models.LoadDataRequest) ([]models.HistoricalPrice, error) {
	args := m.Called(ctx, requests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoricalPrice), args.Error(1)
}

func newTestSyncer(t *testing.T, loader *MockLoader, pairs *PairRegistry, table *Table) *Syncer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	syncer := NewSyncer(loader, table, pairs, SyncerConfig{AggregatedSourceID: aggregated}, logger)
	syncer.now = func() time.Time { return testDate }
	return syncer
}

func TestSyncer_SyncOnce(t *testing.T) {
	loader := new(MockLoader)
	table := NewTable(nil)
	pairs := NewPairRegistry()
	pairs.Add(pair("USDT", "BTC"), pair("USDT", "ETH"))

	requests := []models.LoadDataRequest{
		{SourceID: "CRYPTOCOMPARE", Ts: 20180101101010, MarketCurrency: "USDT", TradeCurrency: "BTC"},
		{SourceID: "CRYPTOCOMPARE", Ts: 20180101101010, MarketCurrency: "USDT", TradeCurrency: "ETH"},
	}
	loader.On("LoadPrices", mock.Anything, requests).Return([]models.HistoricalPrice{
		{SourceID: "CRYPTOCOMPARE", Ts: 20180101101010, MarketCurrency: "USDT", TradeCurrency: "BTC", Price: money.MustParse("13500")},
	}, nil)

	// Subscribers of the aggregated cell see the refresh
	var got []Update
	table.GetPriceChannel("USDT", "BTC", aggregated).Attach(func(ctx context.Context, u Update) { got = append(got, u) })

	syncer := newTestSyncer(t, loader, pairs, table)
	require.NoError(t, syncer.SyncOnce(context.Background()))

	assert.Equal(t, "13500.00000000", table.GetPrice("USDT", "BTC", aggregated).String())
	assert.Nil(t, table.GetPrice("USDT", "ETH", aggregated))
	require.Len(t, got, 1)
	assert.Equal(t, testDate, got[0].Date)
	loader.AssertExpectations(t)
}

func TestSyncer_NoPairs(t *testing.T) {
	loader := new(MockLoader)
	syncer := newTestSyncer(t, loader, NewPairRegistry(), NewTable(nil))

	require.NoError(t, syncer.SyncOnce(context.Background()))
	loader.AssertNotCalled(t, "LoadPrices", mock.Anything, mock.Anything)
}

func TestSyncer_LoaderError(t *testing.T) {
	loader := new(MockLoader)
	pairs := NewPairRegistry()
	pairs.Add(pair("USDT", "BTC"))

	loader.On("LoadPrices", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	syncer := newTestSyncer(t, loader, pairs, NewTable(nil))
	err := syncer.SyncOnce(context.Background())
	assert.ErrorContains(t, err, "CRYPTOCOMPARE")
}

func TestSyncer_StartRejectsBadSchedule(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	syncer := NewSyncer(new(MockLoader), NewTable(nil), NewPairRegistry(), SyncerConfig{Schedule: "every now and then"}, logger)

	assert.Error(t, syncer.Start())
}

func TestSyncer_StartStop(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	syncer := NewSyncer(new(MockLoader), NewTable(nil), NewPairRegistry(), SyncerConfig{Schedule: "@every 1h"}, logger)

	require.NoError(t, syncer.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	syncer.Stop(ctx)
}
