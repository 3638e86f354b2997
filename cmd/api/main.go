package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fcgift/config"
	"fcgift/internal/api/handler"
	"fcgift/internal/cache"
	"fcgift/internal/fetcher"
	"fcgift/internal/logging"
	"fcgift/internal/metrics"
	"fcgift/internal/neynar"
	"fcgift/internal/pager"
	"fcgift/internal/ranking"
	"fcgift/internal/repository"
	"fcgift/internal/selection"
)

const (
	checkpointInterval = 10 * time.Minute
	shutdownTimeout    = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	bootLogger, err := logging.New("info", "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		_ = bootLogger.Sync()
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	_ = bootLogger.Sync()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode(logger, run(cfg, logger)))
}

type flushLogger interface {
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error
}

// exitCode logs err, flushes buffered log entries and returns the process exit status.
func exitCode(logger flushLogger, err error) int {
	code := 0
	if err != nil {
		logger.Errorw("Exiting with error", "err", err)
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	logger.Infow("Configuration loaded",
		"port", cfg.Port,
		"database", cfg.Database,
		"fetch_mode", cfg.Fetch.Mode,
		"cache_backend", cfg.Cache.Backend,
		"page_size", cfg.Paging.PageSize,
		"max_pages", cfg.Paging.MaxPages,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(registry, "fcgift")

	repo, err := repository.New(cfg.Database, logger.Named("repository"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer repo.Close()
	logger.Info("Database initialized successfully")

	store, closeStore, err := newCacheStore(cfg.Cache, logger.Named("cache"))
	if err != nil {
		return err
	}
	defer closeStore()
	usageCache := cache.New(store, collector)

	client := neynar.New(neynar.Options{
		BaseURL:          cfg.Neynar.BaseURL,
		APIKey:           cfg.Neynar.APIKey,
		Timeout:          cfg.Neynar.Timeout,
		RateLimit:        cfg.Neynar.RateLimit,
		Burst:            cfg.Neynar.Burst,
		FailureThreshold: cfg.Neynar.FailureThreshold,
		SuspendFor:       cfg.Neynar.SuspendFor,
	}, logger.Named("neynar"))

	usageFetcher := fetcher.New(client, usageCache, fetcher.Options{
		Mode:        cfg.Fetch.Mode,
		BatchSize:   cfg.Fetch.BatchSize,
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     cfg.Fetch.Timeout,
	}, logger.Named("fetcher"), collector)

	calculator := ranking.NewCalculator(repo, logger.Named("ranking"), collector)
	cursors := pager.NewCursorCodec(cfg.Paging.CursorSecret, cfg.Paging.CursorTTL)

	selector := selection.New(client, client, usageFetcher, calculator, cursors, selection.Options{
		FollowingLimit: cfg.Neynar.FollowingLimit,
		PageSize:       cfg.Paging.PageSize,
		MaxPages:       cfg.Paging.MaxPages,
		MaxPageSize:    cfg.Paging.MaxPageSize,
	}, logger.Named("selection"), collector)

	h := handler.New(selector, repo, client.Health(), logger.Named("api"))
	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           h.Router(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("Starting API server", "addr", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			_ = repo.Checkpoint(ctx)
			cancel()
		case err, ok := <-serverErr:
			if ok {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-sigChan:
			logger.Info("Shutdown signal received")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			logger.Info("Exiting...")
			return nil
		}
	}
}

func newCacheStore(cfg config.CacheConfig, logger *zap.SugaredLogger) (cache.Store, func(), error) {
	if cfg.Backend != "redis" {
		logger.Infow("Using in-memory usage cache", "size", cfg.Size, "ttl", cfg.TTL)
		return cache.NewMemoryStore(cfg.Size, cfg.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := cache.NewRedisStore(client, cfg.Redis.Prefix, cfg.TTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Infow("Using redis usage cache", "addr", cfg.Redis.Addr, "ttl", cfg.TTL)
	return store, func() { client.Close() }, nil
}
