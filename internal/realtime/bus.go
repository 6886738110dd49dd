package realtime

import (
	"sync"
	"time"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

// RateEvent is the aggregated price of one pair as seen by a rate watcher.
type RateEvent struct {
	Date           time.Time   `json:"date"`
	MarketCurrency string      `json:"marketCurrency"`
	TradeCurrency  string      `json:"tradeCurrency"`
	Price          money.Money `json:"price"`
}

// Listener receives bus events.
type Listener func(RateEvent)

// Bus is a keyed event emitter.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]Listener
	nextID    uint64
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string]map[uint64]Listener)}
}

// On registers l for key. The returned function removes it and reports how many
// listeners remain on key.
func (b *Bus) On(key string, l Listener) (off func() int) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	byID, ok := b.listeners[key]
	if !ok {
		byID = make(map[uint64]Listener)
		b.listeners[key] = byID
	}
	byID[id] = l
	b.mu.Unlock()

	return func() int {
		b.mu.Lock()
		defer b.mu.Unlock()

		byID := b.listeners[key]
		delete(byID, id)
		if len(byID) == 0 {
			delete(b.listeners, key)
			return 0
		}
		return len(byID)
	}
}

// Emit calls every listener of key outside the bus lock.
func (b *Bus) Emit(key string, ev RateEvent) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners[key]))
	for _, l := range b.listeners[key] {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// ListenerCount returns the number of listeners on key.
func (b *Bus) ListenerCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[key])
}
