// Package main runs the document retrieval service: REST and SSE API, MCP
// tools and health checks.
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

	"github.com/joho/godotenv"

	"github.com/bull/legally-rag/internal/app"
	"github.com/bull/legally-rag/internal/config"
	"github.com/bull/legally-rag/internal/httpapi"
	mcpserver "github.com/bull/legally-rag/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("ragd failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// load the embedding backend in the background so the first request
	// does not pay for it; failures are retried on demand
	go func() {
		if err := a.Embeddings.Ready(ctx); err != nil {
			logger.Warn("embedding warm-up failed", "error", err)
		}
	}()

	// Over HTTP every MCP call must name its user; stdio has a single local one.
	owner := cfg.MCPOwnerID
	if cfg.ServerMode {
		owner = ""
	}
	server := mcpserver.NewServer(&mcpserver.Config{
		Index:        a.RAG,
		DefaultOwner: owner,
		Logger:       logger,
	})

	apiCfg := httpapi.Config{
		Index:         a.RAG,
		Conversations: a.Conversations,
		Logger:        logger,
	}
	if a.Answers != nil {
		apiCfg.Answers = a.Answers
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(a.Store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.Handle("/v1/", httpapi.New(apiCfg))

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		logger.Info("starting HTTP server", "addr", httpServer.Addr,
			"vector_store", cfg.VectorStore, "embedding_provider", cfg.EmbeddingProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode: MCP over stdin/stdout, HTTP in the background for local testing
	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("starting MCP server (stdio mode)", "owner_id", owner)
	return server.Run(ctx)
}
