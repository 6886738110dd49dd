package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

const (
	kindPrice = "price"
	kindRate  = "rate"
)

// ManagerConfig configures the subscription manager
type ManagerConfig struct {
	AggregatedSourceID string
	RateWatchInterval  time.Duration
}

// Manager creates change-price and change-rate subscriptions over a Table.
type Manager struct {
	table   *Table
	bus     *Bus
	pairs   *PairRegistry
	config  ManagerConfig
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	watchers    map[string]*rateWatcher
	activePrice int64
	activeRate  int64
}

// ManagerStats reports live subscription counts
type ManagerStats struct {
	PriceSubscriptions int64 `json:"price_subscriptions"`
	RateSubscriptions  int64 `json:"rate_subscriptions"`
	RateWatchers       int   `json:"rate_watchers"`
	InterestingPairs   int   `json:"interesting_pairs"`
}

func NewManager(table *Table, pairs *PairRegistry, config ManagerConfig, logger logrus.FieldLogger, metrics *monitoring.Metrics) *Manager {
	if config.RateWatchInterval <= 0 {
		config.RateWatchInterval = time.Second
	}
	return &Manager{
		table:    table,
		bus:      NewBus(),
		pairs:    pairs,
		config:   config,
		logger:   logger.WithField("component", "subscription_manager"),
		metrics:  metrics,
		watchers: make(map[string]*rateWatcher),
	}
}

// Stats returns the current subscription counts
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		PriceSubscriptions: m.activePrice,
		RateSubscriptions:  m.activeRate,
		RateWatchers:       len(m.watchers),
		InterestingPairs:   m.pairs.Len(),
	}
}

func (m *Manager) adjustActive(kind string, delta int64) {
	m.mu.Lock()
	var n int64
	switch kind {
	case kindPrice:
		m.activePrice += delta
		n = m.activePrice
	case kindRate:
		m.activeRate += delta
		n = m.activeRate
	}
	m.mu.Unlock()

	m.metrics.SetActiveSubscriptions(kind, n)
}

// PriceSnapshot is one delivery of a change-price subscription.
type PriceSnapshot struct {
	Date   time.Time `json:"date"`
	Prices Prices    `json:"prices"`
}

// PriceSubscription delivers a snapshot of its pairs × sources every threshold
// while at least one callback is attached.
type PriceSubscription struct {
	id        string
	manager   *Manager
	threshold time.Duration
	pairs     []models.Pair
	sources   []string

	mu       sync.Mutex
	handlers map[uint64]func(PriceSnapshot)
	order    []uint64
	nextID   uint64
	stop     chan struct{}
	disposed bool
}

// SubscribeChangePrice creates a change-price subscription. Every pair × source
// cell, the aggregated source included, is created in the table up front.
func (m *Manager) SubscribeChangePrice(threshold time.Duration, pairs []models.Pair, exchanges []string) (*PriceSubscription, error) {
	if threshold <= 0 {
		return nil, types.NewArgumentError("threshold must be positive")
	}
	if len(pairs) == 0 {
		return nil, types.NewArgumentError("at least one pair is required")
	}

	sources := withSource(exchanges, m.config.AggregatedSourceID)
	for _, pair := range pairs {
		for _, source := range sources {
			m.table.GetPriceChannel(pair.MarketCurrency, pair.TradeCurrency, source)
		}
	}
	m.pairs.Add(pairs...)

	sub := &PriceSubscription{
		id:        uuid.NewString(),
		manager:   m,
		threshold: threshold,
		pairs:     append([]models.Pair(nil), pairs...),
		sources:   sources,
		handlers:  make(map[uint64]func(PriceSnapshot)),
	}
	m.adjustActive(kindPrice, 1)

	m.logger.WithFields(logrus.Fields{
		"subscription_id": sub.id,
		"threshold":       threshold,
		"pairs":           len(pairs),
		"sources":         sources,
	}).Debug("Change-price subscription created")

	return sub, nil
}

func (s *PriceSubscription) ID() string {
	return s.id
}

// Sources returns the exchanges of the subscription followed by the aggregated source.
func (s *PriceSubscription) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Attach adds a callback, starting the timer if it is the first one.
// The returned function detaches it; detaching the last callback stops the timer.
func (s *PriceSubscription) Attach(fn func(PriceSnapshot)) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	s.handlers[id] = fn
	s.order = append(s.order, id)
	if s.stop == nil {
		s.stop = make(chan struct{})
		go s.run(s.stop)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.detach(id) })
	}
}

func (s *PriceSubscription) detach(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[id]; !ok {
		return
	}
	delete(s.handlers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if len(s.handlers) == 0 {
		s.stopTimer()
	}
}

// stopTimer must be called with s.mu held.
func (s *PriceSubscription) stopTimer() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *PriceSubscription) run(stop chan struct{}) {
	ticker := time.NewTicker(s.threshold)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.tick(stop, now)
		}
	}
}

func (s *PriceSubscription) tick(stop chan struct{}, now time.Time) {
	s.mu.Lock()
	if s.stop != stop {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(PriceSnapshot), 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	snapshot := PriceSnapshot{
		Date:   now.UTC(),
		Prices: s.manager.table.Filter(s.pairs, s.sources),
	}
	for _, h := range handlers {
		h(snapshot)
	}
}

// Dispose stops the timer, drops every callback and releases the subscription.
func (s *PriceSubscription) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.handlers = make(map[uint64]func(PriceSnapshot))
	s.order = nil
	s.stopTimer()
	s.mu.Unlock()

	s.manager.adjustActive(kindPrice, -1)
	s.manager.logger.WithField("subscription_id", s.id).Debug("Change-price subscription disposed")
}

// RateSubscription delivers the aggregated price of one pair. Subscriptions on
// the same pair share one watcher.
type RateSubscription struct {
	id        string
	manager   *Manager
	key       string
	pair      models.Pair
	threshold time.Duration

	mu       sync.Mutex
	offs     map[uint64]func() int
	nextID   uint64
	disposed bool
}

func rateKey(market, trade string) string {
	return fmt.Sprintf("rate:%s:%s", market, trade)
}

// SubscribeChangeRate creates a change-rate subscription. Deliveries to each
// callback are at least threshold apart.
func (m *Manager) SubscribeChangeRate(threshold time.Duration, marketCurrency, tradeCurrency string) (*RateSubscription, error) {
	if threshold <= 0 {
		return nil, types.NewArgumentError("threshold must be positive")
	}
	if marketCurrency == "" || tradeCurrency == "" {
		return nil, types.NewArgumentError("market and trade currency are required")
	}

	pair := models.Pair{MarketCurrency: marketCurrency, TradeCurrency: tradeCurrency}
	m.table.GetPriceChannel(marketCurrency, tradeCurrency, m.config.AggregatedSourceID)
	m.pairs.Add(pair)

	sub := &RateSubscription{
		id:        uuid.NewString(),
		manager:   m,
		key:       rateKey(marketCurrency, tradeCurrency),
		pair:      pair,
		threshold: threshold,
		offs:      make(map[uint64]func() int),
	}
	m.adjustActive(kindRate, 1)

	m.logger.WithFields(logrus.Fields{
		"subscription_id": sub.id,
		"key":             sub.key,
		"threshold":       threshold,
	}).Debug("Change-rate subscription created")

	return sub, nil
}

func (s *RateSubscription) ID() string {
	return s.id
}

func (s *RateSubscription) Pair() models.Pair {
	return s.pair
}

// Attach adds a callback to the shared watcher of the pair, starting it if needed.
func (s *RateSubscription) Attach(fn func(RateEvent)) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return func() {}
	}

	// A replaced watcher may still be emitting when its successor starts.
	var (
		mu   sync.Mutex
		last time.Time
	)
	listener := func(ev RateEvent) {
		mu.Lock()
		defer mu.Unlock()

		if !last.IsZero() && ev.Date.Sub(last) < s.threshold {
			return
		}
		last = ev.Date
		fn(ev)
	}

	s.nextID++
	id := s.nextID
	s.offs[id] = s.manager.listen(s.key, s.pair, listener)

	var once sync.Once
	return func() {
		once.Do(func() { s.detach(id) })
	}
}

func (s *RateSubscription) detach(id uint64) {
	s.mu.Lock()
	off, ok := s.offs[id]
	delete(s.offs, id)
	s.mu.Unlock()

	if ok {
		s.manager.unlisten(s.key, off)
	}
}

// Dispose detaches the callbacks of this subscription only.
func (s *RateSubscription) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	offs := s.offs
	s.offs = make(map[uint64]func() int)
	s.mu.Unlock()

	for _, off := range offs {
		s.manager.unlisten(s.key, off)
	}
	s.manager.adjustActive(kindRate, -1)
	s.manager.logger.WithField("subscription_id", s.id).Debug("Change-rate subscription disposed")
}

func (m *Manager) listen(key string, pair models.Pair, l Listener) func() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	off := m.bus.On(key, l)
	if _, ok := m.watchers[key]; !ok {
		w := &rateWatcher{key: key, pair: pair, stop: make(chan struct{})}
		m.watchers[key] = w
		go m.watch(w)

		m.logger.WithField("key", key).Debug("Rate watcher started")
	}
	return off
}

func (m *Manager) unlisten(key string, off func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off() > 0 {
		return
	}
	if w, ok := m.watchers[key]; ok {
		close(w.stop)
		delete(m.watchers, key)

		m.logger.WithField("key", key).Debug("Rate watcher stopped")
	}
}

type rateWatcher struct {
	key  string
	pair models.Pair
	stop chan struct{}
}

// watch polls the aggregated cell of the pair and emits it on the bus while it has a price.
func (m *Manager) watch(w *rateWatcher) {
	ticker := time.NewTicker(m.config.RateWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case now := <-ticker.C:
			price := m.table.GetPrice(w.pair.MarketCurrency, w.pair.TradeCurrency, m.config.AggregatedSourceID)
			if price == nil {
				continue
			}
			m.bus.Emit(w.key, RateEvent{
				Date:           now.UTC(),
				MarketCurrency: w.pair.MarketCurrency,
				TradeCurrency:  w.pair.TradeCurrency,
				Price:          *price,
			})
		}
	}
}

func withSource(sources []string, extra string) []string {
	seen := make(map[string]struct{}, len(sources)+1)
	out := make([]string, 0, len(sources)+1)
	for _, s := range append(append([]string(nil), sources...), extra) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
