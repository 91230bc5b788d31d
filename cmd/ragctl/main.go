// Package main provides ragctl, the command line client for ingesting legal
// documents and querying them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/legally-rag/internal/app"
	"github.com/bull/legally-rag/internal/config"
)

var ownerID string

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Legal document ingestion and retrieval tool",
	Long: `CLI for ingesting legal documents, searching them and asking questions about them.

Configuration comes from the environment (or a .env file):
  VECTOR_STORE        memory (default) or qdrant; memory does not outlive the command
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  EMBEDDING_PROVIDER  local (default) or openai
  OPENAI_API_KEY      required for openai embeddings
  GENERATION_API_KEY  chat model key for chat and analyze
  GITHUB_TOKEN        GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "local", "user ID that owns the documents")
	rootCmd.AddCommand(ingestCmd, searchCmd, deleteCmd, statusCmd, chatCmd, analyzeCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and wires the components.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger()
	if cfg.VectorStore == config.StoreMemory {
		logger.Warn("VECTOR_STORE=memory: indexed chunks are discarded when ragctl exits")
	}
	return app.New(ctx, cfg, logger)
}
