package ingest

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/realtime"
)

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) UpdatePrice(ctx context.Context, date time.Time, market, trade, source string, price money.Money) {
	m.Called(ctx, date, market, trade, source, price)
}

type MockAcknowledger struct {
	mock.Mock
}

func (m *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	return m.Called(tag, multiple).Error(0)
}

func (m *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return m.Called(tag, multiple, requeue).Error(0)
}

func (m *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Called(tag, requeue).Error(0)
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "tick.binance", Body: []byte(body)}
}

func TestConsumer_ProcessDelivery(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	date := time.Date(2018, 1, 1, 10, 10, 10, 0, time.UTC)

	t.Run("valid tick updates the table and acks", func(t *testing.T) {
		updater := new(MockUpdater)
		ack := new(MockAcknowledger)
		c := newConsumer(Config{Queue: "ticks"}, updater, logger)

		updater.On("UpdatePrice", mock.Anything, date, "USDT", "BTC", "BINANCE", mock.MatchedBy(func(p money.Money) bool {
			return p.String() == "6500.50000000"
		})).Return()
		ack.On("Ack", uint64(1), false).Return(nil)

		c.processDelivery(context.Background(), delivery(ack, `{"date":"2018-01-01T10:10:10Z","market":"USDT","trade":"BTC","source":"BINANCE","price":"6500.5"}`))

		updater.AssertExpectations(t)
		ack.AssertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `tick`},
		{name: "missing source", body: `{"date":"2018-01-01T10:10:10Z","market":"USDT","trade":"BTC","price":"1"}`},
		{name: "missing date", body: `{"market":"USDT","trade":"BTC","source":"BINANCE","price":"1"}`},
		{name: "bad price", body: `{"date":"2018-01-01T10:10:10Z","market":"USDT","trade":"BTC","source":"BINANCE","price":"abc"}`},
		{name: "negative price", body: `{"date":"2018-01-01T10:10:10Z","market":"USDT","trade":"BTC","source":"BINANCE","price":"-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			updater := new(MockUpdater)
			ack := new(MockAcknowledger)
			c := newConsumer(Config{Queue: "ticks"}, updater, logger)

			ack.On("Nack", uint64(1), false, false).Return(nil)

			c.processDelivery(context.Background(), delivery(ack, tt.body))

			updater.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			ack.AssertExpectations(t)
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, "Dropping malformed tick", hook.LastEntry().Message)
		})
	}
}

func TestConsumer_ConsumeFeedsTable(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	table := realtime.NewTable(nil)
	c := newConsumer(Config{Queue: "ticks"}, table, logger)

	ack := new(MockAcknowledger)
	ack.On("Ack", uint64(1), false).Return(nil)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- delivery(ack, `{"date":"2018-01-01T10:10:10Z","market":"USDT","trade":"BTC","source":"BINANCE","price":"6500"}`)
	deliveries <- delivery(ack, `{"date":"2018-01-01T10:10:11Z","market":"USDT","trade":"BTC","source":"BINANCE","price":"6501"}`)
	close(deliveries)

	c.wg.Add(1)
	c.consume(context.Background(), deliveries)

	price := table.GetPrice("USDT", "BTC", "BINANCE")
	require.NotNil(t, price)
	assert.Equal(t, "6501.00000000", price.String())
	ack.AssertNumberOfCalls(t, "Ack", 2)
}

func TestConsumer_StopWhenNotRunning(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	c := newConsumer(Config{}, realtime.NewTable(nil), logger)

	assert.Error(t, c.Stop())
}
