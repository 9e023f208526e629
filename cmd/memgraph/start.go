package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/memgraph/internal/config"
	"github.com/flemzord/memgraph/internal/consolidate"
	"github.com/flemzord/memgraph/internal/cron"
	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/gateway"
	"github.com/flemzord/memgraph/internal/mcpserver"
	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/memory/sqlite"
	"github.com/flemzord/memgraph/internal/metrics"
	"github.com/flemzord/memgraph/internal/recorder"
	"github.com/flemzord/memgraph/internal/retrieval"
	"github.com/flemzord/memgraph/internal/telemetry"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve memory tools over MCP stdio, with the admin gateway and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runServer(cfgPath)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// runServer wires everything from config and blocks until stdin closes or a
// shutdown signal arrives.
func runServer(cfgPath string) error {
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	reg, err := memory.NewRegistryWithOverrides(cfg.Importance, cfg.Weights)
	if err != nil {
		return err
	}

	nodes, edges, closeStore, err := buildStore(cfg.Storage, reg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := memory.NewSessionCache()
	if err := rebuildState(ctx, nodes, cache, cfg.Session, logger); err != nil {
		logger.Warn("session state rebuild failed", "error", err)
	}

	m := metrics.New()
	rec := recorder.New(nodes, edges, reg, cache, logger, m)
	engine := retrieval.NewEngine(nodes, edges, retrieval.Config{
		HalfLife:          cfg.Retrieval.HalfLife.Std(),
		SimilarityTimeout: cfg.Retrieval.SimilarityTimeout.Std(),
		DefaultLimit:      cfg.Retrieval.DefaultLimit,
	}, logger, m)
	provider := buildProvider(cfg.Embedding)

	scheduler, err := buildScheduler(cfg, nodes, edges, reg, cache, provider, logger, m)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = scheduler.Stop(stopCtx)
	}()

	if cfg.Gateway.Listen != "" {
		gw := gateway.New(gateway.Config{
			Bind:        cfg.Gateway.Listen,
			BearerToken: cfg.Gateway.AuthToken,
		}, engine, rec, cache, provider, logger, m)
		if err := gw.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = gw.Stop(stopCtx)
		}()
	}

	srv := mcpserver.New(version, rec, engine, provider, logger)
	return srv.ServeStdio(ctx)
}

// buildLogger maps the log config onto a slog handler writing to stderr.
// Stdout belongs to the MCP transport.
func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildStore opens the configured backend. The returned close function is a
// no-op for the in-memory graph.
func buildStore(cfg config.StorageConfig, reg *memory.Registry, logger *slog.Logger) (memory.NodeStore, memory.EdgeStore, func(), error) {
	if cfg.Backend == "memory" {
		graph := memory.NewInMemoryGraph(reg)
		return graph, graph, func() {}, nil
	}

	graph, err := sqlite.Open(cfg.Path, sqlite.Config{
		WAL:         cfg.WAL,
		BusyTimeout: cfg.BusyTimeoutMS,
	}, reg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return graph, graph, func() {
		if err := graph.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}, nil
}

// buildProvider returns nil for the "none" provider; retrieval then ranks
// on importance and recency only.
func buildProvider(cfg config.EmbeddingConfig) embedding.Provider {
	if cfg.Provider == "local" {
		return &embedding.Local{Dim: cfg.Dimensions}
	}
	return nil
}

// rebuildState reconstructs entity pointers for every stored session after
// a restart.
func rebuildState(ctx context.Context, nodes memory.NodeStore, cache *memory.SessionCache, cfg config.SessionConfig, logger *slog.Logger) error {
	scanLimit := cfg.RebuildScanLimit
	if scanLimit <= 0 {
		scanLimit = 50
	}

	sessions, err := nodes.Sessions(ctx, 1)
	if err != nil {
		return err
	}
	for _, sessionID := range sessions {
		if err := cache.Rebuild(ctx, nodes, sessionID, scanLimit); err != nil {
			return fmt.Errorf("rebuild %s: %w", sessionID, err)
		}
	}
	if len(sessions) > 0 {
		logger.Info("session state rebuilt", "sessions", len(sessions))
	}
	return nil
}

// buildScheduler registers the background jobs.
func buildScheduler(cfg *config.Config, nodes memory.NodeStore, edges memory.EdgeStore, reg *memory.Registry, cache *memory.SessionCache, provider embedding.Provider, logger *slog.Logger, m *metrics.Metrics) (*cron.Scheduler, error) {
	scheduler := cron.NewScheduler(logger)

	maxIdle := cfg.Session.StateMaxIdle.Std()
	if maxIdle <= 0 {
		maxIdle = 2 * time.Hour
	}
	if err := scheduler.RegisterJob(&cron.StateCleanupJob{
		Cache:        cache,
		MaxIdle:      maxIdle,
		Logger:       logger,
		ScheduleExpr: cfg.Session.CleanupSchedule,
	}); err != nil {
		return nil, err
	}

	if err := scheduler.RegisterJob(consolidate.NewJob(nodes, edges, reg, consolidate.Config{
		Schedule:            cfg.Consolidation.Schedule,
		MinNodes:            cfg.Consolidation.MinNodes,
		StalenessWindow:     cfg.Consolidation.StalenessWindow.Std(),
		DecayFactor:         cfg.Consolidation.DecayFactor,
		SimilarityThreshold: cfg.Consolidation.SimilarityThreshold,
	}, logger, m)); err != nil {
		return nil, err
	}

	if provider != nil {
		if err := scheduler.RegisterJob(&consolidate.EmbedJob{
			Nodes:        nodes,
			Provider:     provider,
			Logger:       logger,
			BatchSize:    cfg.Consolidation.EmbedBatch,
			ScheduleExpr: cfg.Consolidation.EmbedSchedule,
		}); err != nil {
			return nil, err
		}
	}

	return scheduler, nil
}
