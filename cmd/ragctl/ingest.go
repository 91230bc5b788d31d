package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/legally-rag/internal/app"
	ghclient "github.com/bull/legally-rag/internal/github"
	"github.com/bull/legally-rag/internal/rag"
)

var ingestFlags struct {
	documentID string
	replace    bool
	github     string
	path       string
	ref        string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Chunk, embed and index documents",
	Long: `Ingests local files, or every .md/.markdown/.txt file below a directory of a
GitHub repository.

Document IDs default to the file name for local files and to
github:<owner>/<repo>/<path> for GitHub files. Re-ingesting a document adds
its chunks again unless --replace is given.`,
	Example: `  ragctl ingest --owner alice rental-agreement.md
  ragctl ingest --replace --github acme/indian-acts --path acts/contract`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.documentID, "id", "", "document ID (single file only)")
	f.BoolVar(&ingestFlags.replace, "replace", false, "delete existing chunks of each document first")
	f.StringVar(&ingestFlags.github, "github", "", "ingest from a GitHub repository, owner/repo")
	f.StringVar(&ingestFlags.path, "path", "", "directory inside the GitHub repository")
	f.StringVar(&ingestFlags.ref, "ref", "", "branch, tag or commit (default branch when empty)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	if ingestFlags.github == "" && len(args) == 0 {
		return fmt.Errorf("give files to ingest or --github owner/repo")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var docs []rag.Document
	if ingestFlags.github != "" {
		docs, err = githubDocuments(ctx, a.Config.GitHubToken)
	} else {
		docs, err = fileDocuments(args, ingestFlags.documentID, ingestFlags.replace)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Indexing %d documents...\n", len(docs))
	report := a.RAG.IngestAll(ctx, docs)
	printReport(report)
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d documents failed", len(report.Failed))
	}
	return nil
}

func fileDocuments(paths []string, documentID string, replace bool) ([]rag.Document, error) {
	if documentID != "" && len(paths) > 1 {
		return nil, fmt.Errorf("--id needs exactly one file, got %d", len(paths))
	}

	docs := make([]rag.Document, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		text, title, err := rag.PrepareText(rag.FormatForName(name), string(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}

		id := documentID
		if id == "" {
			id = name
		}
		meta := map[string]any{"file_name": name}
		if title != "" {
			meta["title"] = title
		}
		docs = append(docs, rag.Document{
			ID:       id,
			OwnerID:  ownerID,
			Text:     text,
			Replace:  replace,
			Metadata: meta,
		})
	}
	return docs, nil
}

func githubDocuments(ctx context.Context, token string) ([]rag.Document, error) {
	repoOwner, repo, err := ghclient.ParseRepository(ingestFlags.github)
	if err != nil {
		return nil, err
	}
	client, err := ghclient.NewClient(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(client, repoOwner, repo, ingestFlags.path, ingestFlags.ref)

	fmt.Printf("Listing documents in %s/%s/%s...\n", repoOwner, repo, ingestFlags.path)
	paths, err := fetcher.ListDocs(ctx)
	if err != nil {
		return nil, err
	}
	commit, err := fetcher.LatestCommitSHA(ctx)
	if err != nil {
		// only used as provenance metadata
		fmt.Printf("  warning: %v\n", err)
	}

	docs := make([]rag.Document, 0, len(paths))
	for _, p := range paths {
		remote, err := fetcher.FetchDoc(ctx, p)
		if err != nil {
			fmt.Printf("  skipping %s: %v\n", p, err)
			continue
		}
		format := rag.FormatText
		if remote.IsMarkdown() {
			format = rag.FormatMarkdown
		}
		text, title, err := rag.PrepareText(format, remote.Content)
		if err != nil {
			fmt.Printf("  skipping %s: %v\n", p, err)
			continue
		}

		meta := map[string]any{
			"file_name":  remote.Name,
			"source_sha": remote.SHA,
			"source_url": remote.URL,
		}
		if commit != "" {
			meta["source_commit"] = commit
		}
		if title != "" {
			meta["title"] = title
		}
		docs = append(docs, rag.Document{
			ID:       fmt.Sprintf("github:%s/%s/%s", repoOwner, repo, filepath.ToSlash(filepath.Join(ingestFlags.path, p))),
			OwnerID:  ownerID,
			Text:     text,
			Replace:  ingestFlags.replace,
			Metadata: meta,
		})
	}
	return docs, nil
}

func printReport(r *rag.IngestReport) {
	fmt.Println()
	fmt.Println("Ingest complete!")
	fmt.Printf("  Documents: %d/%d\n", r.Succeeded, r.Total)
	fmt.Printf("  Skipped (too short): %d\n", r.Skipped)
	fmt.Printf("  Chunks: %d\n", r.Chunks)
	fmt.Printf("  Duration: %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range r.Failed {
			fmt.Printf("  - %s: %s\n", failed.DocumentID, failed.Reason)
		}
	}
}

// ingestLocal is used by chat and analyze to make files available in the
// same run, which is what makes them useful with the memory store.
func ingestLocal(ctx context.Context, a *app.App, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	docs, err := fileDocuments(paths, "", true)
	if err != nil {
		return err
	}
	report := a.RAG.IngestAll(ctx, docs)
	if len(report.Failed) > 0 {
		return fmt.Errorf("failed to ingest %s: %s", report.Failed[0].DocumentID, report.Failed[0].Reason)
	}
	return nil
}
