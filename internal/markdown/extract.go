// Package markdown turns markdown sources into plain text for ingestion.
// Headings are preserved as a breadcrumb in front of each section so that
// chunks cut from the middle of a long document keep their context.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is a slice of a markdown document under an H1 or H2 heading.
type Section struct {
	Heading string // breadcrumb, e.g. "Lease > Termination"
	Body    string // raw markdown between this heading and the next boundary
}

// Document is the result of extracting a markdown source.
type Document struct {
	Title    string
	Sections []Section
}

// Text renders the document as ingestion text. Sections are separated by a
// blank line and prefixed with their heading breadcrumb.
func (d *Document) Text() string {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Heading != "" {
			b.WriteString(s.Heading)
			b.WriteString(".\n")
		}
		b.WriteString(s.Body)
	}
	return b.String()
}

// Extractor parses markdown with goldmark.
type Extractor struct {
	md goldmark.Markdown
}

// NewExtractor creates an Extractor with auto heading IDs enabled, which the
// section lookup relies on.
func NewExtractor() *Extractor {
	return &Extractor{
		md: goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
	}
}

// Extract splits source at H1 and H2 headings.
func (e *Extractor) Extract(source []byte) (*Document, error) {
	doc := e.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headings: %w", err)
	}

	out := &Document{}
	if len(tree.Items) == 0 {
		body := strings.TrimSpace(string(source))
		if body != "" {
			out.Sections = []Section{{Body: body}}
		}
		return out, nil
	}

	out.Title = string(tree.Items[0].Title)

	// text before the first heading would otherwise be lost
	first := findHeading(doc, string(tree.Items[0].ID))
	if first != nil && first.Lines().Len() > 0 {
		if lead := strings.TrimSpace(string(source[:lineStart(source, first.Lines().At(0).Start)])); lead != "" {
			out.Sections = append(out.Sections, Section{Body: lead})
		}
	}

	collect(doc, source, tree.Items, nil, &out.Sections)
	return out, nil
}

func collect(doc ast.Node, source []byte, items toc.Items, ancestors []string, sections *[]Section) {
	for i, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))

		heading := findHeading(doc, string(item.ID))
		if heading == nil || heading.Lines().Len() == 0 {
			continue
		}
		start := heading.Lines().At(0)

		var end text.Segment
		if i+1 < len(items) {
			if next := findHeading(doc, string(items[i+1].ID)); next != nil && next.Lines().Len() > 0 {
				end = next.Lines().At(0)
			}
		} else {
			end = nextBoundary(doc, heading, heading.(*ast.Heading).Level)
		}

		// the heading line itself is carried by the breadcrumb
		body := strings.TrimSpace(string(slice(source, start.Stop, end)))
		// a nested H2 cuts its parent's body short
		if len(item.Items) > 0 {
			if child := findHeading(doc, string(item.Items[0].ID)); child != nil && child.Lines().Len() > 0 {
				body = strings.TrimSpace(string(slice(source, start.Stop, child.Lines().At(0))))
			}
		}

		*sections = append(*sections, Section{
			Heading: strings.Join(path, " > "),
			Body:    body,
		})

		if len(item.Items) > 0 {
			collect(doc, source, item.Items, path, sections)
		}
	}
}

func findHeading(root ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if v, ok := n.AttributeString("id"); ok {
			if b, ok := v.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextBoundary returns the first line of the next heading at the same or a
// higher level than current. A zero segment means end of document.
func nextBoundary(root, current ast.Node, level int) text.Segment {
	var (
		next ast.Node
		seen bool
	)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !seen {
			seen = n == current
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= level && n.Lines().Len() > 0 {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if next == nil {
		return text.Segment{}
	}
	return next.Lines().At(0)
}

// slice returns source from start up to the line that begins at end,
// or to EOF for a zero segment.
func slice(source []byte, start int, end text.Segment) []byte {
	if end.Start == 0 && end.Stop == 0 {
		return source[start:]
	}
	return source[start:max(start, lineStart(source, end.Start))]
}

// lineStart backs up from pos to the beginning of its line. Heading segments
// start after the leading hashes.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
