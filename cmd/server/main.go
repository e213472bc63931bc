package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	infracache "github.com/amirasaad/marketdata/infra/cache"
	infraprovider "github.com/amirasaad/marketdata/infra/provider"
	"github.com/amirasaad/marketdata/pkg/breaker"
	"github.com/amirasaad/marketdata/pkg/cache"
	"github.com/amirasaad/marketdata/pkg/config"
	"github.com/amirasaad/marketdata/pkg/metrics"
	"github.com/amirasaad/marketdata/pkg/retry"
	"github.com/amirasaad/marketdata/pkg/service/price"
	"github.com/amirasaad/marketdata/pkg/service/rate"
	"github.com/amirasaad/marketdata/webapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// @title Market Data API
// @version 1.0.0
// @description Resilient multi-provider market data access layer
// @host localhost:3000
// @BasePath /
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	m := metrics.New()

	cacheClient := buildCache(cfg, logger)
	registry := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		OnStateChange: func(provider string, _, to breaker.State) {
			m.RecordBreakerState(provider, to.String(), float64(to))
		},
	}, logger)

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		Timeout:     cfg.Retry.Timeout,
	}

	priceSvc := price.New(
		infraprovider.NewAlphaVantageProvider(cfg.AlphaVantage, logger),
		infraprovider.NewFinnhubProvider(cfg.Finnhub, logger),
		registry, cacheClient,
		price.Config{
			FreshTTL:       cfg.Cache.PriceTTL,
			StaleRetention: cfg.Cache.StaleRetention,
			Retry:          retryCfg,
		},
		logger, m,
	)

	rateSvc := rate.New(
		infraprovider.NewExchangeRateAPIProvider(cfg.ExchangeRateAPI, logger),
		infraprovider.NewOpenExchangeProvider(cfg.OpenExchange, logger),
		registry, cacheClient,
		rate.Config{
			FreshTTL:       cfg.Cache.RateTTL,
			StaleRetention: cfg.Cache.StaleRetention,
			Retry:          retryCfg,
		},
		logger, m,
	)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	app := webapi.NewApp(priceSvc, rateSvc)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		logger.Info("shutting down", "signal", s.String())
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", "env", cfg.Env, "address", addr)
	return app.Listen(addr)
}

// buildCache picks the cache backend: Redis when configured, the in-process
// cache otherwise, and a no-op when caching is disabled outright.
func buildCache(cfg *config.App, logger *slog.Logger) cache.Client {
	if !cfg.Cache.Enabled {
		logger.Warn("caching disabled, stale fallback will not be available")
		return infracache.NoopCache{}
	}
	if cfg.Redis.Addr != "" {
		logger.Info("using Redis cache", "addr", cfg.Redis.Addr)
		return infracache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix, logger)
	}
	logger.Info("Redis not configured, using in-memory cache")
	return infracache.NewMemoryCache()
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listener started", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}
