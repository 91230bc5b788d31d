package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	documentFilter string
	maxChunks      int
	searchFiles    []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the excerpts retrieved for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := ingestLocal(ctx, a, searchFiles); err != nil {
			return err
		}

		query := strings.Join(args, " ")
		hits, err := a.RAG.Search(ctx, query, ownerID, documentFilter, maxChunks)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No matching excerpts found.")
			return nil
		}
		for i, h := range hits {
			fmt.Printf("%d. %s #%d  similarity %.3f\n", i+1, h.Chunk.DocumentID, h.Chunk.ChunkIndex, h.Similarity)
			fmt.Printf("   %s\n\n", strings.ReplaceAll(h.Chunk.Content, "\n", "\n   "))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>...",
	Short: "Remove every chunk of the given documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.RAG.DeleteDocument(ctx, ownerID, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Printf("Deleted %s\n", id)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many chunks are indexed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.Health(ctx); err != nil {
			return fmt.Errorf("vector store unhealthy: %w", err)
		}
		n, err := a.RAG.Status(ctx, ownerID, documentFilter)
		if err != nil {
			return err
		}

		scope := "all documents"
		if documentFilter != "" {
			scope = documentFilter
		}
		fmt.Printf("Vector store: %s (healthy)\n", a.Config.VectorStore)
		fmt.Printf("Owner: %s\n", ownerID)
		fmt.Printf("Chunks in %s: %d\n", scope, n)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&documentFilter, "document", "", "only search this document")
	searchCmd.Flags().IntVar(&maxChunks, "max", 0, "maximum number of excerpts (default MAX_CHUNKS)")
	searchCmd.Flags().StringSliceVar(&searchFiles, "file", nil, "ingest these files first")
	statusCmd.Flags().StringVar(&documentFilter, "document", "", "only count this document")
}
