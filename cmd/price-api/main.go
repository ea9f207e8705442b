package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/ksa-price-scraper/internal/api"
	"github.com/maltedev/ksa-price-scraper/internal/cache"
	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/config"
	"github.com/maltedev/ksa-price-scraper/internal/fetch"
	"github.com/maltedev/ksa-price-scraper/internal/jobs"
	"github.com/maltedev/ksa-price-scraper/internal/stores"
	"github.com/maltedev/ksa-price-scraper/pkg/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := cfg.ProxyPool()
	if err != nil {
		logger.Error("failed to load proxies", "error", err)
		os.Exit(1)
	}

	fetcher, err := fetch.New(cfg.Browser.Backend, cfg.FetchOptions(), logger)
	if err != nil {
		logger.Error("failed to initialize fetcher", "error", err)
		os.Exit(1)
	}
	defer fetcher.Close()

	memory := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.TTL)
	var resultCache cache.Cache = memory
	if cfg.Cache.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "addr", cfg.Cache.RedisAddr, "error", err)
			os.Exit(1)
		}

		remote := cache.NewRedis(redisClient, cfg.Cache.RedisPrefix, cfg.Cache.TTL, logger)
		resultCache = cache.NewTiered(memory, remote)
		logger.Info("redis cache tier enabled", "addr", cfg.Cache.RedisAddr)
	}

	registry := stores.DefaultRegistry()
	orchestrator := compare.NewOrchestrator(registry, fetcher, resultCache, cfg.CompareConfig(pool), logger)
	jobManager := jobs.NewManager(orchestrator, cfg.Server.MaxJobs, logger)
	handlers := api.NewHandlers(registry, jobManager, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, api.RouterOptions{RequestTimeout: cfg.Server.WriteTimeout}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		if err := jobManager.Shutdown(shutdownCtx); err != nil {
			logger.Error("jobs did not stop in time", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "backend", cfg.Browser.Backend, "proxies", len(pool))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-stopped
	logger.Info("server stopped")
}
