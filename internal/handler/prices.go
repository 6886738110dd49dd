package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/dto"
	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

// GetHistoricalPrices serves GET /api/v1/prices/historical?q=TS:MARKET:TRADE[:SOURCE],...
func (h *Handler) GetHistoricalPrices(c *gin.Context) {
	args, err := dto.ParseHistoricalQuery(c.Query("q"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.prices.GetHistoricalPrices(ctx, args)
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(result))
}

// GetRate serves GET /api/v1/rate?exchange&date&market&trade
func (h *Handler) GetRate(c *gin.Context) {
	var req dto.RateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, types.NewArgumentError("invalid query: %v", err), nil)
		return
	}
	req.SetDefaults()
	if err := req.Validate(); err != nil {
		h.respondError(c, err, nil)
		return
	}

	arg, err := req.ToArgument()
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.prices.GetHistoricalPrices(ctx, []models.PriceArgument{arg})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(rateData(result, arg)))
}

// GetRates serves GET /api/v1/rates?q=TS:MARKET:TRADE,...
func (h *Handler) GetRates(c *gin.Context) {
	args, err := dto.ParseBatchRateQuery(c.Query("q"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.prices.GetHistoricalPrices(ctx, args)
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	rates := make([]*dto.RateData, 0, len(args))
	for _, arg := range args {
		rates = append(rates, rateData(result, arg))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(rates))
}

// rateData picks the source price when arg names a source, the average otherwise
func rateData(result models.Timestamp, arg models.PriceArgument) *dto.RateData {
	data := &dto.RateData{
		Exchange:       arg.SourceID,
		Date:           arg.Ts,
		MarketCurrency: arg.MarketCurrency,
		TradeCurrency:  arg.TradeCurrency,
	}

	entry := result.Get(arg.Ts, arg.MarketCurrency, arg.TradeCurrency)
	if entry == nil {
		return data
	}

	var value *models.PriceValue
	if arg.HasSource() {
		value = entry.Sources[arg.SourceID]
	} else {
		value = entry.Avg
	}
	if value != nil {
		price := value.Price
		data.Price = &price
	}
	return data
}

func (h *Handler) respondError(c *gin.Context, err error, partial models.Timestamp) {
	var dateErr *types.InvalidDateError
	var aggErr *types.AggregateError
	var loaderErr *types.LoaderError

	switch {
	case errors.As(err, &dateErr):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeInvalidDate, err.Error(), nil))
	case types.IsClientError(err):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeInvalidArgument, err.Error(), nil))
	case errors.As(err, &aggErr):
		response := dto.NewErrorResponse(dto.CodeSourceFailure, "some sources failed", sourceFailures(aggErr.Errors))
		if partial != nil {
			response.Data = partial
		}
		c.JSON(http.StatusBadGateway, response)
	case errors.As(err, &loaderErr):
		c.JSON(http.StatusBadGateway, dto.NewErrorResponse(dto.CodeSourceFailure, err.Error(), sourceFailures([]error{loaderErr})))
	default:
		h.logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"error": err,
		}).Error("Price lookup failed")
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeInternalError, "internal error", nil))
	}
}

func sourceFailures(errs []error) []dto.SourceFailure {
	failures := make([]dto.SourceFailure, 0, len(errs))
	for _, err := range errs {
		failure := dto.SourceFailure{Kind: types.ErrorKind(err), Message: err.Error()}
		var loaderErr *types.LoaderError
		if errors.As(err, &loaderErr) {
			failure.Source = loaderErr.SourceID
		}
		failures = append(failures, failure)
	}
	return failures
}
