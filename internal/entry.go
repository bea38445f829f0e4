// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/audit"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/ingest"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/notes"
	"github.com/starford/ansuz/internal/ollama"
	"github.com/starford/ansuz/internal/qdrant"
	"github.com/starford/ansuz/internal/rag"
)

// components holds everything built from a Config.
type components struct {
	llm          *ollama.Client
	index        *qdrant.Client
	manifest     *manifest.DB
	pipeline     *ingest.Pipeline
	retriever    *rag.Retriever
	registry     *agent.Registry
	orchestrator *agent.Orchestrator
	auditor      *audit.Logger
	broker       *events.Broker
	logger       *slog.Logger
}

func (c *components) close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.auditor != nil {
		_ = c.auditor.Close()
	}
	if c.manifest != nil {
		_ = c.manifest.Close()
	}
}

// build wires the full component graph. withBroker is false for
// one-shot commands that have no event subscribers.
func build(cfg *Config, withBroker bool) (*components, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Docs.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}

	llm := ollama.New(ollama.Config{
		BaseURL:    cfg.Ollama.BaseURL,
		ChatModel:  cfg.Ollama.ChatModel,
		EmbedModel: cfg.Ollama.EmbedModel,
	})
	index := qdrant.New(qdrant.Config{
		URL:    cfg.Qdrant.URL,
		APIKey: cfg.Qdrant.APIKey,
	})

	mf, err := manifest.Open(cfg.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("init manifest: %w", err)
	}

	c := &components{llm: llm, index: index, manifest: mf, logger: logger}

	if withBroker {
		c.broker = events.NewBroker()
	}

	var notifier ingest.Notifier
	if c.broker != nil {
		notifier = c.broker
	}
	c.pipeline = ingest.NewPipeline(llm, index, mf, cfg.Qdrant.Collection, notifier, logger)
	c.retriever = rag.NewRetriever(llm, index, cfg.Qdrant.Collection)

	noteStore, err := notes.NewStore(cfg.Agent.NotesDir)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init note store: %w", err)
	}
	c.registry = agent.NewRegistry(c.retriever, noteStore)

	c.auditor, err = audit.Open(cfg.Agent.AuditPath)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init audit log: %w", err)
	}

	var agentNotifier agent.Notifier
	if c.broker != nil {
		agentNotifier = c.broker
	}
	c.orchestrator = agent.NewOrchestrator(llm, c.registry, c.auditor, agentNotifier, logger)

	return c, nil
}

// Run starts the HTTP server, the initial sync, and the documents
// watcher, and blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	c, err := build(cfg, true)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("docs_path", cfg.Docs.Path),
		slog.String("qdrant_url", cfg.Qdrant.URL),
		slog.String("collection", cfg.Qdrant.Collection),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc := api.NewService(c.orchestrator, c.retriever, c.pipeline, c.llm, cfg.Docs.Path, cfg.Agent.TopK)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated). Readiness probes both
	// upstream services.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.llm.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"ollama unavailable"}`))
			return
		}
		if err := c.index.Ready(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"qdrant unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial sync, then keep the index in step with the documents dir.
	g.Go(func() error {
		if _, err := c.pipeline.Sync(gCtx, cfg.Docs.Path); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
		return c.pipeline.Watch(gCtx, cfg.Docs.Path)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunIngest performs one full ingestion pass over the documents
// directory and exits.
func RunIngest(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	c, err := build(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	result, err := c.pipeline.IngestDirectory(ctx, cfg.Docs.Path)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	c.logger.Info("Ingestion finished",
		slog.Int("files_processed", result.FilesProcessed),
		slog.Int("points_upserted", result.PointsUpserted))
	return nil
}

// RunMCP exposes the tool registry over MCP stdio and blocks until the
// client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	c, err := build(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	return mcpserver.Serve(ctx, c.registry, c.logger)
}
