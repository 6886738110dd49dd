package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/aggregator"
	"github.com/zxtrader/pricing-sub000/internal/cache"
	"github.com/zxtrader/pricing-sub000/internal/config"
	"github.com/zxtrader/pricing-sub000/internal/handler"
	"github.com/zxtrader/pricing-sub000/internal/ingest"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
	"github.com/zxtrader/pricing-sub000/internal/providers"
	"github.com/zxtrader/pricing-sub000/internal/realtime"
	"github.com/zxtrader/pricing-sub000/internal/store"
	"github.com/zxtrader/pricing-sub000/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.WithField("environment", cfg.Environment).Info("Starting pricing service")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Pricing service stopped with error")
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// Historical price store
	priceStore, checks, closeStore, err := openStore(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer closeStore()

	// Price loaders
	factory := providers.NewFactory(log)
	loaders, err := factory.CreateProviderManager(cfg.Providers.List())
	if err != nil {
		return fmt.Errorf("create price loaders: %w", err)
	}
	log.WithField("sources", loaders.SourceIDs()).Info("Price loaders registered")

	engine := aggregator.NewEngine(priceStore, loaders, log, metrics)

	// Real-time table and subscriptions
	table := realtime.NewTable(metrics)
	pairs := realtime.NewPairRegistry()
	manager := realtime.NewManager(table, pairs, realtime.ManagerConfig{
		AggregatedSourceID: cfg.Realtime.AggregatedSourceID,
		RateWatchInterval:  cfg.Realtime.RateWatchInterval,
	}, log, metrics)

	var syncer *realtime.Syncer
	if cfg.Realtime.SyncEnabled {
		if loader, ok := loaders.GetProvider(cfg.Realtime.SyncSourceID); ok {
			syncer = realtime.NewSyncer(loader, table, pairs, realtime.SyncerConfig{
				Schedule:           cfg.Realtime.SyncSchedule,
				AggregatedSourceID: cfg.Realtime.AggregatedSourceID,
				Timeout:            cfg.Realtime.SyncTimeout,
			}, log)
			if err := syncer.Start(); err != nil {
				return err
			}
		} else {
			log.WithField("source", cfg.Realtime.SyncSourceID).Warn("Sync source not enabled, price sync disabled")
		}
	}

	var consumer *ingest.Consumer
	if cfg.Ingest.Enabled {
		consumer, err = ingest.NewConsumer(ingest.Config{
			URL:         cfg.Ingest.URL,
			Exchange:    cfg.Ingest.Exchange,
			Queue:       cfg.Ingest.Queue,
			RoutingKey:  cfg.Ingest.RoutingKey,
			ConsumerTag: "pricing-service",
			Prefetch:    cfg.Ingest.Prefetch,
		}, table, log)
		if err != nil {
			return fmt.Errorf("create tick consumer: %w", err)
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	// HTTP server
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handler.NewHandler(engine, manager, checks, cfg.WebSocket, log).RegisterRoutes(router, registry)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.WithError(err).Warn("Tick consumer stop failed")
		}
	}
	if syncer != nil {
		syncer.Stop(shutdownCtx)
	}
	return nil
}

// openStore builds the configured price store and the health checks of its backing service.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger, metrics *monitoring.Metrics) (store.PriceStore, map[string]handler.Pinger, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		pgStore := store.NewPostgresStore(db, cfg.Storage.PriorityList, log, metrics)
		if cfg.Postgres.InitSchema {
			if err := pgStore.InitSchema(ctx); err != nil {
				pgStore.Close()
				return nil, nil, nil, err
			}
		}
		checks := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
		return pgStore, checks, func() { pgStore.Close() }, nil

	case config.BackendRedis:
		cacheConfig := cache.DefaultRedisConfig()
		cacheConfig.URL = cfg.Redis.URL
		cacheConfig.KeyPrefix = cfg.Redis.KeyPrefix
		cacheConfig.PoolSize = cfg.Redis.PoolSize
		if cfg.Redis.Timeout > 0 {
			cacheConfig.ReadTimeout = cfg.Redis.Timeout
			cacheConfig.WriteTimeout = cfg.Redis.Timeout
		}
		redisCache, err := cache.NewRedisCache(ctx, cacheConfig, metrics)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		checks := map[string]handler.Pinger{"redis": redisCache}
		return store.NewKVStore(redisCache, cacheConfig.KeyPrefix, log, metrics), checks, func() { redisCache.Close() }, nil

	default:
		memory := cache.NewMemoryCache()
		log.Warn("Using in-memory price store, prices are lost on restart")
		return store.NewKVStore(memory, "", log, metrics), map[string]handler.Pinger{}, func() { memory.Close() }, nil
	}
}
