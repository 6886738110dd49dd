package types

import (
	"context"

	"github.com/zxtrader/pricing-sub000/internal/models"
)

// PriceLoader fetches historical prices from one external source.
//
// Implementations skip requests whose timestamp lies outside the source's
// historical range instead of failing, and return a *CommunicationError or a
// *BrokenAPIError when the source cannot be used.
type PriceLoader interface {
	// SourceID is the registry key, e.g. "CRYPTOCOMPARE".
	SourceID() string

	LoadPrices(ctx context.Context, requests []models.LoadDataRequest) ([]models.HistoricalPrice, error)
}
