// Package realtime holds the live price table and the change subscriptions built on it.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
)

// Update is delivered to the handlers of a cell each time its price changes.
type Update struct {
	Date  time.Time   `json:"date"`
	Price money.Money `json:"price"`
}

// Handler receives cell updates. UpdatePrice waits for every handler to return.
// A handler must not update the cell it is attached to.
type Handler func(ctx context.Context, u Update)

// Channel is the observer list of one cell.
type Channel struct {
	mu       sync.Mutex
	handlers map[uint64]Handler
	order    []uint64
	nextID   uint64
}

func newChannel() *Channel {
	return &Channel{handlers: make(map[uint64]Handler)}
}

// Attach registers h and returns the function that removes it again.
func (c *Channel) Attach(h Handler) (detach func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[id] = h
	c.order = append(c.order, id)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of attached handlers.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// notify calls every handler attached at call time, in attach order.
func (c *Channel) notify(ctx context.Context, u Update) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.order))
	for _, id := range c.order {
		handlers = append(handlers, c.handlers[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ctx, u)
	}
}

type cellKey struct {
	market string
	trade  string
	source string
}

// update serialises UpdatePrice per cell across the price write and notification.
type cell struct {
	update  sync.Mutex
	price   *money.Money
	channel *Channel
}

// Prices is the market → trade → source → price snapshot returned by Filter.
// A nil price means the combination has never been observed.
type Prices map[string]map[string]map[string]*money.Money

// Table is the in-memory current price per (market, trade, source).
// Cells are created lazily and never removed.
type Table struct {
	mu      sync.RWMutex
	cells   map[cellKey]*cell
	metrics *monitoring.Metrics
}

func NewTable(metrics *monitoring.Metrics) *Table {
	return &Table{
		cells:   make(map[cellKey]*cell),
		metrics: metrics,
	}
}

// GetPrice returns the current price of a cell or nil. It never creates a cell.
func (t *Table) GetPrice(market, trade, source string) *money.Money {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.cells[cellKey{market: market, trade: trade, source: source}]
	if !ok || c.price == nil {
		return nil
	}
	price := *c.price
	return &price
}

// GetPriceChannel returns the notification channel of a cell, creating the cell with no price if needed.
func (t *Table) GetPriceChannel(market, trade, source string) *Channel {
	key := cellKey{market: market, trade: trade, source: source}

	t.mu.RLock()
	c, ok := t.cells[key]
	t.mu.RUnlock()
	if ok {
		return c.channel
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.cells[key]; ok {
		return c.channel
	}
	c = &cell{channel: newChannel()}
	t.cells[key] = c
	return c.channel
}

// UpdatePrice sets the price of a cell. A cell created by this call is only
// initialised; an existing cell notifies its handlers with {date, price} and
// the call returns once all of them have. Updates of one cell run one at a
// time, so handlers see prices in the order they were stored.
func (t *Table) UpdatePrice(ctx context.Context, date time.Time, market, trade, source string, price money.Money) {
	key := cellKey{market: market, trade: trade, source: source}

	t.mu.Lock()
	c, existed := t.cells[key]
	if !existed {
		c = &cell{channel: newChannel()}
		c.update.Lock()
		t.cells[key] = c
	}
	t.mu.Unlock()

	if existed {
		c.update.Lock()
	}
	defer c.update.Unlock()

	p := price
	t.mu.Lock()
	c.price = &p
	t.mu.Unlock()

	t.metrics.RecordRealtimeUpdate(source)

	if existed {
		c.channel.notify(ctx, Update{Date: date, Price: price})
	}
}

// Filter returns a snapshot restricted to pairs × sources. Every requested
// combination is present; unknown ones map to nil. The table is not modified.
func (t *Table) Filter(pairs []models.Pair, sources []string) Prices {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(Prices)
	for _, pair := range pairs {
		byTrade, ok := result[pair.MarketCurrency]
		if !ok {
			byTrade = make(map[string]map[string]*money.Money)
			result[pair.MarketCurrency] = byTrade
		}
		bySource, ok := byTrade[pair.TradeCurrency]
		if !ok {
			bySource = make(map[string]*money.Money, len(sources))
			byTrade[pair.TradeCurrency] = bySource
		}
		for _, source := range sources {
			var price *money.Money
			if c, ok := t.cells[cellKey{market: pair.MarketCurrency, trade: pair.TradeCurrency, source: source}]; ok && c.price != nil {
				p := *c.price
				price = &p
			}
			bySource[source] = price
		}
	}
	return result
}

// Len returns the number of cells.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cells)
}
