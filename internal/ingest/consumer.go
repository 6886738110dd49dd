// Package ingest feeds real-time ticks from RabbitMQ into the live price table.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

// PriceUpdater receives decoded ticks
type PriceUpdater interface {
	UpdatePrice(ctx context.Context, date time.Time, market, trade, source string, price money.Money)
}

// Config represents consumer configuration
type Config struct {
	URL         string
	Exchange    string
	Queue       string
	RoutingKey  string
	ConsumerTag string
	Prefetch    int
}

// Tick is one price observation published on the feed
type Tick struct {
	Date   time.Time   `json:"date" validate:"required"`
	Market string      `json:"market" validate:"required"`
	Trade  string      `json:"trade" validate:"required"`
	Source string      `json:"source" validate:"required"`
	Price  money.Money `json:"price"`
}

// Consumer reads ticks from a queue bound to the price exchange
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	config   Config
	updater  PriceUpdater
	validate *validator.Validate
	logger   logrus.FieldLogger

	mu        sync.Mutex
	consuming bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewConsumer connects to RabbitMQ and declares the exchange and queue
func NewConsumer(config Config, updater PriceUpdater, logger logrus.FieldLogger) (*Consumer, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := newConsumer(config, updater, logger)
	c.conn = conn
	c.channel = channel

	if err := c.setupInfrastructure(); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return c, nil
}

func newConsumer(config Config, updater PriceUpdater, logger logrus.FieldLogger) *Consumer {
	return &Consumer{
		config:   config,
		updater:  updater,
		validate: validator.New(),
		logger:   logger.WithField("component", "tick_consumer"),
		stopChan: make(chan struct{}),
	}
}

func (c *Consumer) setupInfrastructure() error {
	if c.config.Exchange != "" {
		err := c.channel.ExchangeDeclare(
			c.config.Exchange,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	queue, err := c.channel.QueueDeclare(
		c.config.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if c.config.Exchange != "" {
		if err := c.channel.QueueBind(queue.Name, c.config.RoutingKey, c.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue with routing key %s: %w", c.config.RoutingKey, err)
		}
	}

	if c.config.Prefetch > 0 {
		if err := c.channel.Qos(c.config.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	return nil
}

// Start begins consuming in the background
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consuming {
		return fmt.Errorf("consumer is already running")
	}

	deliveries, err := c.channel.Consume(
		c.config.Queue,
		c.config.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.consuming = true
	c.wg.Add(1)
	go c.consume(ctx, deliveries)

	c.logger.WithFields(logrus.Fields{
		"exchange": c.config.Exchange,
		"queue":    c.config.Queue,
	}).Info("Tick consumer started")
	return nil
}

// Stop waits for the consume loop to exit and closes the connection
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.consuming {
		c.mu.Unlock()
		return fmt.Errorf("consumer is not running")
	}
	c.consuming = false
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.logger.Info("Tick consumer stopped")
	return nil
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return
			}
			c.processDelivery(ctx, delivery)
		}
	}
}

// processDelivery applies one tick. Malformed ticks are dropped without requeue.
func (c *Consumer) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	tick, err := c.decode(delivery.Body)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"routing_key": delivery.RoutingKey,
			"error":       err,
		}).Warn("Dropping malformed tick")

		if err := delivery.Nack(false, false); err != nil {
			c.logger.WithError(err).Error("Failed to nack tick")
		}
		return
	}

	c.updater.UpdatePrice(ctx, tick.Date.UTC(), tick.Market, tick.Trade, tick.Source, tick.Price)

	if err := delivery.Ack(false); err != nil {
		c.logger.WithError(err).Error("Failed to ack tick")
	}
}

func (c *Consumer) decode(body []byte) (*Tick, error) {
	var tick Tick
	if err := json.Unmarshal(body, &tick); err != nil {
		return nil, fmt.Errorf("unmarshal tick: %w", err)
	}
	if err := c.validate.Struct(&tick); err != nil {
		return nil, fmt.Errorf("validate tick: %w", err)
	}
	if tick.Price.IsNegative() {
		return nil, fmt.Errorf("validate tick: negative price %s", tick.Price)
	}
	return &tick, nil
}
