package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zxtrader/pricing-sub000/internal/models"
)

func TestBus(t *testing.T) {
	bus := NewBus()

	var got []RateEvent
	offA := bus.On("rate:USDT:BTC", func(ev RateEvent) { got = append(got, ev) })
	offB := bus.On("rate:USDT:BTC", func(ev RateEvent) {})
	bus.On("rate:USDT:ETH", func(ev RateEvent) { t.Error("unexpected event on other key") })

	assert.Equal(t, 2, bus.ListenerCount("rate:USDT:BTC"))

	bus.Emit("rate:USDT:BTC", RateEvent{MarketCurrency: "USDT", TradeCurrency: "BTC"})
	assert.Len(t, got, 1)

	assert.Equal(t, 1, offA())
	assert.Equal(t, 0, offB())
	assert.Equal(t, 0, bus.ListenerCount("rate:USDT:BTC"))
	assert.Equal(t, 1, bus.ListenerCount("rate:USDT:ETH"))
}

func TestPairRegistry(t *testing.T) {
	registry := NewPairRegistry()
	btc := pair("USDT", "BTC")
	eth := pair("USDT", "ETH")

	registry.Add(btc, eth, btc)
	registry.Add(btc)

	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, []models.Pair{btc, eth}, registry.List())
}
