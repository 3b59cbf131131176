package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexuscore/fabric/internal/auth"
	"github.com/nexuscore/fabric/internal/config"
	"github.com/nexuscore/fabric/internal/gateway"
	"github.com/nexuscore/fabric/internal/mcp"
	"github.com/nexuscore/fabric/internal/memory"
	"github.com/nexuscore/fabric/internal/observability"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/internal/tools/websearch"
	"github.com/nexuscore/fabric/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// runServe loads configuration, wires the gateway's dependency graph,
// and serves /ws/chat until a shutdown signal arrives,
// grounded on the teacher's handlers_serve.go signal-handling shape.
func runServe(cmd *cobra.Command, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	resolver, err := gateway.NewLLMResolver(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("build llm resolver: %w", err)
	}
	defaultProvider, _ := resolver.Default()
	consolidator := memory.NewConsolidator(defaultProvider, logger)
	toolOrchestrator := mcp.NewOrchestrator(logger)
	sharedToolServers := gateway.NewSharedToolServers(cfg.ToolServers)
	toolServers := gateway.ConfiguredToolServers{Shared: sharedToolServers, Store: store}
	configWatcher, err := config.NewWatcher(configPath, logger, func(reloaded *config.Config) {
		sharedToolServers.Store(reloaded.ToolServers)
	})
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer configWatcher.Close()
	}
	search := buildWebSearchTool(cfg.WebSearch)
	registry := gateway.NewConnectionRegistry()
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "nexus",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		EnableInsecure: cfg.Tracing.EnableInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	build := func(userID string, user models.User) gateway.SessionHandler {
		reg, err := gateway.BuildToolRegistry(store, userID, search)
		if err != nil {
			logger.Error("failed to build tool registry", "user_id", userID, "error", err)
			reg = nil
		}
		return gateway.SessionHandler{
			Store:       store,
			Registry:    reg,
			Agents:      gateway.StoreAgentLister{Store: store},
			Providers:   resolver,
			AgentMemory: store,
			Consolidate: consolidator,
			Tools:       toolOrchestrator,
			ToolServers: toolServers,
			Logger:      logger,
			Metrics:     metrics,
			Tracer:      tracer,
		}
	}

	server := gateway.NewServer(jwtSvc, registry, build, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws/chat", server)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	toolOrchestrator.Close()
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return httpServer.Shutdown(shutdownCtx)
}

// openStore builds the configured session store: Postgres when a
// database URL is set, an in-memory store otherwise.
func openStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.Database.URL == "" {
		return sessions.NewMemoryStore(), nil
	}
	pcfg := sessions.DefaultPostgresConfig()
	pcfg.MaxOpenConns = cfg.Database.MaxOpenConns
	pcfg.MaxIdleConns = cfg.Database.MaxIdleConns
	pcfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	return sessions.NewPostgresStoreFromDSN(cfg.Database.URL, pcfg)
}

// buildWebSearchTool constructs the web_search built-in
// from the operator's config, or returns nil when unconfigured so
// BuildToolRegistry omits it entirely.
func buildWebSearchTool(cfg config.WebSearchConfig) *websearch.WebSearchTool {
	if cfg.SearXNGURL == "" && cfg.BraveAPIKey == "" && cfg.DefaultBackend == "" {
		return nil
	}
	return websearch.NewWebSearchTool(&websearch.Config{
		SearXNGURL:         cfg.SearXNGURL,
		BraveAPIKey:        cfg.BraveAPIKey,
		DefaultBackend:     websearch.SearchBackend(cfg.DefaultBackend),
		ExtractContent:     cfg.ExtractContent,
		DefaultResultCount: cfg.DefaultResultCount,
	})
}
