package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/legally-rag/internal/answer"
	"github.com/bull/legally-rag/internal/app"
	"github.com/bull/legally-rag/internal/rag"
)

var chatFlags struct {
	document string
	files    []string
	language string
}

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Ask a question and stream the answer",
	Long: `Retrieves excerpts relevant to the question from the owner's documents and
streams an answer. Use --file to ingest documents for this question only,
which works without a persistent vector store.`,
	Example: `  ragctl chat --file lease.md "Can my landlord keep the whole deposit?"
  ragctl chat --language ta --document lease.md "What is the notice period?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Answers == nil {
			return app.ErrGenerationDisabled
		}
		if err := ingestLocal(ctx, a, chatFlags.files); err != nil {
			return err
		}

		question := strings.Join(args, " ")
		events, err := a.Answers.Stream(ctx, answer.Turn{
			OwnerID:      ownerID,
			Question:     question,
			Context:      a.RAG.ContextFor(ctx, question, ownerID, chatFlags.document),
			DocumentName: chatFlags.document,
			Language:     chatFlags.language,
		})
		if err != nil {
			return err
		}
		return printStream(events)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Stream a structured analysis of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := filepath.Base(args[0])
		text, _, err := rag.PrepareText(rag.FormatForName(name), string(raw))
		if err != nil {
			return err
		}

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Answers == nil {
			return app.ErrGenerationDisabled
		}

		events, err := a.Answers.Analyze(ctx, answer.AnalysisRequest{
			DocumentName: name,
			Text:         text,
			Language:     chatFlags.language,
		})
		if err != nil {
			return err
		}
		return printStream(events)
	},
}

// printStream writes deltas as they arrive.
func printStream(events <-chan answer.Event) error {
	done := false
	err := answer.Consume(events, answer.Handlers{
		OnDelta: func(text string) { fmt.Print(text) },
		OnDone: func(string) {
			done = true
			fmt.Println()
		},
		OnError: func(msg string) {
			fmt.Println()
			fmt.Fprintln(os.Stderr, msg)
		},
	})
	if err != nil {
		return err
	}
	if !done {
		return errors.New("answer stream interrupted")
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.document, "document", "", "restrict retrieval to this document ID")
	chatCmd.Flags().StringSliceVar(&chatFlags.files, "file", nil, "ingest these files before asking")
	chatCmd.Flags().StringVar(&chatFlags.language, "language", "en", "answer language: en, ta or hi")
	analyzeCmd.Flags().StringVar(&chatFlags.language, "language", "en", "analysis language: en, ta or hi")
}
