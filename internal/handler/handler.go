// Package handler exposes the pricing service over HTTP and websocket.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/aggregator"
	"github.com/zxtrader/pricing-sub000/internal/config"
	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/realtime"
)

// PriceService answers historical price lookups
type PriceService interface {
	GetHistoricalPrices(ctx context.Context, args []models.PriceArgument) (models.Timestamp, error)
	GetStats() *aggregator.EngineStats
	Sources() []string
}

// Pinger is a backing service checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler serves the query and streaming surface
type Handler struct {
	prices    PriceService
	manager   *realtime.Manager
	checks    map[string]Pinger
	wsConfig  config.WebSocketConfig
	upgrader  websocket.Upgrader
	logger    logrus.FieldLogger
	startTime time.Time
	timeout   time.Duration
}

func NewHandler(prices PriceService, manager *realtime.Manager, checks map[string]Pinger, wsConfig config.WebSocketConfig, logger logrus.FieldLogger) *Handler {
	return &Handler{
		prices:   prices,
		manager:  manager,
		checks:   checks,
		wsConfig: wsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsConfig.ReadBufferSize,
			WriteBufferSize: wsConfig.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:    logger.WithField("component", "http_handler"),
		startTime: time.Now(),
		timeout:   30 * time.Second,
	}
}

// RegisterRoutes mounts every route on router
func (h *Handler) RegisterRoutes(router *gin.Engine, gatherer prometheus.Gatherer) {
	router.Use(corsMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/prices/historical", h.GetHistoricalPrices)
		api.GET("/rate", h.GetRate)
		api.GET("/rates", h.GetRates)
		api.GET("/stream", h.Stream)
	}
}
