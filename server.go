package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/singleflight"

	"github.com/SnowCait/user-notes-search/internal/config"
	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/metrics"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/session"
)

// server holds the shared pipeline pieces and the sessions of viewers
type server struct {
	cfg      *config.Config
	base     context.Context
	resolver *discovery.Resolver
	sessions *session.Registry
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	resolveGroup singleflight.Group
}

// newServer wires the pipeline. base bounds discovery and every session;
// dcache may be nil.
func newServer(base context.Context, cfg *config.Config, factory relay.Factory, dcache *discovery.Cache, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) *server {
	resolver := discovery.NewResolver(factory, discovery.Options{
		Limit:       cfg.DiscoveryLimit,
		EOSETimeout: cfg.EOSETimeout.Std(),
		Cache:       dcache,
	}, logger)
	engine := feed.NewEngine(factory, feed.Options{
		BatchLimit:  cfg.BatchLimit,
		MaxPages:    cfg.MaxPages,
		EOSETimeout: cfg.EOSETimeout.Std(),
	}, logger, m)
	relays := session.Relays{
		Discovery: cfg.DiscoveryRelays,
		Content:   cfg.ContentRelays,
	}

	return &server{
		cfg:      cfg,
		base:     base,
		resolver: resolver,
		sessions: session.NewRegistry(func() *session.Session {
			return session.New(base, resolver, engine, relays, logger)
		}, sessionIdleTimeout),
		gatherer: gatherer,
		metrics:  m,
		logger:   logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/resolve", s.resolveHandler)
	mux.HandleFunc("/api/posts/stream", s.streamPostsHandler)
	mux.HandleFunc("/api/posts/abort", s.abortHandler)
	mux.HandleFunc("/api/posts/search", s.searchHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{sessionHeader},
		ExposedHeaders: []string{"X-Request-ID", sessionHeader},
	})
	return c.Handler(RequestLoggingMiddleware(s.metrics, mux))
}

// sweepSessions drops idle sessions every interval until ctx is done
func (s *server) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.Sweep(now); n > 0 {
				s.logger.Debug("sessions: swept idle", "count", n, "remaining", s.sessions.Len())
			}
		}
	}
}
