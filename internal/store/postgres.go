package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
)

const backendPostgres = "postgres"

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS historical_prices (
	quote_currency VARCHAR(16) NOT NULL,
	base_currency VARCHAR(16) NOT NULL,
	source VARCHAR(64) NOT NULL,
	rate NUMERIC(36,8) NOT NULL,
	ts TIMESTAMP NOT NULL,
	PRIMARY KEY (quote_currency, base_currency, source, ts)
)`

	selectSourcesQuery = `SELECT source FROM historical_prices WHERE quote_currency = $1 AND base_currency = $2 AND ts = $3`

	selectRatesQuery = `SELECT source, rate FROM historical_prices WHERE quote_currency = $1 AND base_currency = $2 AND ts = $3`

	upsertPriceQuery = `INSERT INTO historical_prices (quote_currency, base_currency, source, rate, ts) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (quote_currency, base_currency, source, ts) DO UPDATE SET rate = EXCLUDED.rate`
)

// PostgresConfig holds the connection settings of the relational backend.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresStore keeps one row per (quote, base, source, ts). Averages are
// computed at read time from all rows of a tuple; Primary is the first source
// of the priority list that has a row. Every call runs in one transaction.
type PostgresStore struct {
	db       *sql.DB
	priority []string
	logger   logrus.FieldLogger
	metrics  *monitoring.Metrics
}

func NewPostgresStore(db *sql.DB, priority []string, logger logrus.FieldLogger, metrics *monitoring.Metrics) *PostgresStore {
	return &PostgresStore{
		db:       db,
		priority: priority,
		logger:   logger.WithField("component", "postgres_store"),
		metrics:  metrics,
	}
}

// InitSchema creates the prices table if it is missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create historical_prices: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) FilterEmptyPrices(ctx context.Context, args []models.PriceArgument, sources []string) (result []models.LoadDataRequest, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendPostgres, "filter", err, time.Since(start)) }()

	candidates := gapCandidates(args, sources)
	if len(candidates) == 0 {
		return nil, nil
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		recorded := make(map[models.Tuple]map[string]struct{})
		for _, c := range candidates {
			if _, ok := recorded[c.tuple]; ok {
				continue
			}
			present, err := querySources(ctx, tx, c.tuple)
			if err != nil {
				return err
			}
			recorded[c.tuple] = present
		}
		for _, c := range candidates {
			if _, ok := recorded[c.tuple][c.source]; !ok {
				result = append(result, c.request())
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filter empty prices: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) SavePrices(ctx context.Context, prices []models.HistoricalPrice) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendPostgres, "save", err, time.Since(start)) }()

	if len(prices) == 0 {
		return nil
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPriceQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range prices {
			ts, err := models.ParseTimestamp(p.Ts)
			if err != nil {
				return fmt.Errorf("price %s: %w", p.Tuple(), err)
			}
			if _, err := stmt.ExecContext(ctx, p.MarketCurrency, p.TradeCurrency, p.SourceID, p.Price, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPrices(ctx context.Context, args []models.PriceArgument) (result models.Timestamp, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendPostgres, "find", err, time.Since(start)) }()

	result = make(models.Timestamp)
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rates := make(map[models.Tuple]map[string]money.Money)
		for _, arg := range args {
			tuple := arg.Tuple()
			bySource, ok := rates[tuple]
			if !ok {
				var err error
				bySource, err = queryRates(ctx, tx, tuple)
				if err != nil {
					return err
				}
				rates[tuple] = bySource
			}
			entry, err := s.buildAverage(arg, bySource)
			if err != nil {
				return err
			}
			mergeAverage(result, arg, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find prices: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) buildAverage(arg models.PriceArgument, bySource map[string]money.Money) (*models.Average, error) {
	entry := &models.Average{}
	if len(bySource) == 0 {
		if arg.HasSource() {
			entry.Sources = map[string]*models.PriceValue{arg.SourceID: nil}
		}
		return entry, nil
	}

	all := make([]money.Money, 0, len(bySource))
	for _, price := range bySource {
		all = append(all, price)
	}
	avg, err := money.Mean(all)
	if err != nil {
		return nil, err
	}
	entry.Avg = models.NewPriceValue(avg)

	for _, source := range s.priority {
		if price, ok := bySource[source]; ok {
			entry.Primary = &models.SourcePrice{SourceID: source, Price: price}
			break
		}
	}

	switch {
	case arg.HasSource():
		var value *models.PriceValue
		if price, ok := bySource[arg.SourceID]; ok {
			value = models.NewPriceValue(price)
		}
		entry.Sources = map[string]*models.PriceValue{arg.SourceID: value}
	case arg.RequiredAllSourceIDs:
		entry.Sources = make(map[string]*models.PriceValue, len(bySource))
		for source, price := range bySource {
			entry.Sources[source] = models.NewPriceValue(price)
		}
	}
	return entry, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Warn("Rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func querySources(ctx context.Context, tx *sql.Tx, tuple models.Tuple) (map[string]struct{}, error) {
	ts, err := models.ParseTimestamp(tuple.Ts)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, selectSourcesQuery, tuple.MarketCurrency, tuple.TradeCurrency, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]struct{})
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		present[source] = struct{}{}
	}
	return present, rows.Err()
}

func queryRates(ctx context.Context, tx *sql.Tx, tuple models.Tuple) (map[string]money.Money, error) {
	ts, err := models.ParseTimestamp(tuple.Ts)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, selectRatesQuery, tuple.MarketCurrency, tuple.TradeCurrency, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make(map[string]money.Money)
	for rows.Next() {
		var (
			source string
			rate   money.Money
		)
		if err := rows.Scan(&source, &rate); err != nil {
			return nil, err
		}
		rates[source] = rate
	}
	return rates, rows.Err()
}
