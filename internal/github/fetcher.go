package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DefaultExtensions are the file types ingested from a repository.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// RemoteDocument is a file fetched from GitHub.
type RemoteDocument struct {
	Path    string // relative to the fetcher's base path
	Name    string
	Content string
	SHA     string // git blob SHA, stable across unchanged revisions
	URL     string // raw download URL
}

// IsMarkdown reports whether the document should go through markdown extraction.
func (d *RemoteDocument) IsMarkdown() bool {
	ext := strings.ToLower(path.Ext(d.Name))
	return ext == ".md" || ext == ".markdown"
}

// Fetcher lists and downloads documents below one directory of a repository.
type Fetcher struct {
	client     *Client
	owner      string
	repo       string
	basePath   string
	ref        string
	extensions []string
}

// NewFetcher creates a Fetcher. An empty ref means the default branch.
func NewFetcher(client *Client, owner, repo, basePath, ref string) *Fetcher {
	return &Fetcher{
		client:     client,
		owner:      owner,
		repo:       repo,
		basePath:   strings.Trim(basePath, "/"),
		ref:        ref,
		extensions: DefaultExtensions,
	}
}

// ParseRepository splits "owner/repo".
func ParseRepository(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", s)
	}
	return owner, repo, nil
}

func (f *Fetcher) options() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}

// ListDocs recursively lists supported files, relative to the base path.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.options())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	var docs []string
	for _, item := range dirContents {
		name := item.GetName()
		rel := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if f.supported(name) {
				docs = append(docs, rel)
			}
		case "dir":
			sub, err := f.listRecursive(ctx, path.Join(fullPath, name), rel)
			if err != nil {
				return nil, err
			}
			docs = append(docs, sub...)
		}
	}
	return docs, nil
}

func (f *Fetcher) supported(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range f.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FetchDoc downloads one file.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*RemoteDocument, error) {
	fullPath := path.Join(f.basePath, relativePath)

	file, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.options())
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", fullPath)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &RemoteDocument{
		Path:    relativePath,
		Name:    file.GetName(),
		Content: content,
		SHA:     file.GetSHA(),
		URL:     file.GetDownloadURL(),
	}, nil
}

// LatestCommitSHA returns the newest commit touching the base path, used to
// stamp ingested documents with the revision they came from.
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	opts := &github.CommitsListOptions{
		Path:        f.basePath,
		SHA:         f.ref,
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, opts)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].GetSHA() == "" {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return commits[0].GetSHA(), nil
}
