package rag

import (
	"fmt"
	"path"
	"strings"

	"github.com/bull/legally-rag/internal/markdown"
)

// Formats accepted for submitted document content.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

var extractor = markdown.NewExtractor()

// PrepareText turns submitted content into the text that gets chunked.
// Markdown is flattened into heading-prefixed sections and its first heading
// is returned as the title.
func PrepareText(format, content string) (text, title string, err error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return content, "", nil
	case FormatMarkdown, "md":
		doc, err := extractor.Extract([]byte(content))
		if err != nil {
			return "", "", fmt.Errorf("extract markdown: %w", err)
		}
		return doc.Text(), doc.Title, nil
	default:
		return "", "", fmt.Errorf("%w: unknown format %q", ErrInvalidInput, format)
	}
}

// FormatForName guesses the format from a file name.
func FormatForName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}
