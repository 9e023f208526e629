// Package gateway exposes the memory graph over HTTP for operators and
// sidecar integrations: health, status, Prometheus metrics, and a small
// session API. The conversational surface lives in the MCP server; this is
// the admin plane.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/metrics"
	"github.com/flemzord/memgraph/internal/recorder"
	"github.com/flemzord/memgraph/internal/retrieval"
)

// Gateway is the admin HTTP server.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	engine    *retrieval.Engine
	recorder  *recorder.Recorder
	state     *memory.SessionCache
	provider  embedding.Provider // nil when no embedding is configured
	server    *http.Server
	startedAt time.Time
}

// New creates a gateway. provider may be nil; retrieval then runs without
// semantic similarity.
func New(cfg Config, engine *retrieval.Engine, rec *recorder.Recorder, state *memory.SessionCache, provider embedding.Provider, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		engine:   engine,
		recorder: rec,
		state:    state,
		provider: provider,
	}
}

// Start binds and serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully with the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
