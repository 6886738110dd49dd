package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zxtrader/pricing-sub000/internal/cache"
	"github.com/zxtrader/pricing-sub000/internal/dto"
)

// metricsReporter is implemented by checks that keep their own counters.
type metricsReporter interface {
	GetMetrics() *cache.CacheMetrics
}

// Health serves GET /health. Any failing backing service makes the reply 503.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	services := make(map[string]*dto.ServiceHealth, len(h.checks))
	for name, check := range h.checks {
		start := time.Now()
		err := check.Ping(ctx)

		health := &dto.ServiceHealth{
			Status:    "healthy",
			Latency:   time.Since(start).Milliseconds(),
			LastCheck: time.Now().UTC().Format(time.RFC3339),
		}
		if err != nil {
			health.Status = "unhealthy"
			health.Error = err.Error()
			status = "degraded"
		}
		if reporter, ok := check.(metricsReporter); ok {
			health.Metrics = reporter.GetMetrics()
		}
		services[name] = health
	}

	data := &dto.HealthData{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Services:  services,
		Sources:   h.prices.Sources(),
		Engine:    h.prices.GetStats(),
	}
	if h.manager != nil {
		data.Realtime = h.manager.Stats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, dto.NewSuccessResponse(data))
}
