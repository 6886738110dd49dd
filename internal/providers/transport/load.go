package transport

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
)

// FetchFunc loads the price of one request. ok is false when the source has no data for it.
type FetchFunc func(ctx context.Context, req models.LoadDataRequest, at time.Time) (price money.Money, ok bool, err error)

// InRange reports whether at lies between epoch and now, both inclusive.
func InRange(at, epoch, now time.Time) bool {
	return !at.Before(epoch) && !at.After(now)
}

// LoadEach fetches requests one by one. Requests outside [epoch, now] and
// requests the source has no data for are skipped. The first error aborts the batch.
func LoadEach(ctx context.Context, logger logrus.FieldLogger, source string, epoch time.Time, requests []models.LoadDataRequest, fetch FetchFunc) ([]models.HistoricalPrice, error) {
	now := time.Now().UTC()
	prices := make([]models.HistoricalPrice, 0, len(requests))

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		at, err := models.ParseTimestamp(req.Ts)
		if err != nil || !InRange(at, epoch, now) {
			logger.WithFields(logrus.Fields{
				"source": source,
				"ts":     req.Ts,
			}).Debug("Skipping request outside historical range")
			continue
		}

		price, ok, err := fetch(ctx, req, at)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.WithFields(logrus.Fields{
				"source": source,
				"tuple":  req.Tuple().String(),
			}).Debug("Source has no price for request")
			continue
		}

		prices = append(prices, models.HistoricalPrice{
			SourceID:       source,
			Ts:             req.Ts,
			MarketCurrency: req.MarketCurrency,
			TradeCurrency:  req.TradeCurrency,
			Price:          price,
		})
	}

	return prices, nil
}
