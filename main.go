package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/SnowCait/user-notes-search/internal/cache"
	"github.com/SnowCait/user-notes-search/internal/config"
	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/metrics"
	"github.com/SnowCait/user-notes-search/internal/relay"
)

// Sessions idle for longer than this are dropped
const sessionIdleTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := InitLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	backend, err := cache.Open(cfg.RedisURL, "notes:", cfg.CacheEntries)
	if err != nil {
		logger.Error("open cache", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	dcache := discovery.NewCache(backend, cfg.DiscoveryCacheTTL.Std(), cfg.DiscoveryMissTTL.Std())

	factory := relay.NewFactory(relay.PoolOptions{ConnectTimeout: cfg.ConnectTimeout.Std()}, logger)
	srv := newServer(ctx, cfg, factory, dcache, reg, m, logger)
	go srv.sweepSessions(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.ListenAddr, "cache", cacheKind(cfg.RedisURL),
		"discovery_relays", len(cfg.DiscoveryRelays), "content_relays", len(cfg.ContentRelays))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func cacheKind(redisURL string) string {
	if redisURL != "" {
		return "redis"
	}
	return "memory"
}
