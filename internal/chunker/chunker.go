// Package chunker splits extracted document text into overlapping chunks
// sized for embedding.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the soft upper bound of a chunk, in characters.
	DefaultChunkSize = 500

	// DefaultOverlap is how many trailing characters of a closed chunk seed the next one.
	DefaultOverlap = 100
)

// ErrInvalidConfig is returned when chunk size and overlap cannot produce progress.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// sentenceBoundary matches terminal punctuation followed by whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s\p{Zs}]+`)

// Chunker greedily packs sentences into chunks of roughly Size characters.
// Lengths are counted in runes so multi-byte scripts are never split mid-character.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. overlap must be positive and smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in (0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// NewDefault creates a Chunker with DefaultChunkSize and DefaultOverlap.
func NewDefault() *Chunker {
	return &Chunker{size: DefaultChunkSize, overlap: DefaultOverlap}
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunks of text. The result is empty only for empty input.
//
// Every chunk after the first starts with the last Overlap characters of the
// chunk before it. Text without any sentence boundary that is longer than the
// chunk size is cut into fixed windows with stride Size-Overlap instead.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return c.windows(text)
	}

	sentences, boundaries := splitSentences(trimmed)
	if boundaries == 0 && utf8.RuneCountInString(trimmed) > c.size {
		return c.windows(trimmed)
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)

		if bufLen > 0 && bufLen+sentenceLen > c.size {
			closed := buf.String()
			chunks = append(chunks, closed)

			tail := lastRunes(closed, c.overlap)
			buf.Reset()
			buf.WriteString(tail)
			buf.WriteByte(' ')
			buf.WriteString(sentence)
			bufLen = utf8.RuneCountInString(tail) + 1 + sentenceLen
			continue
		}

		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += sentenceLen
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}

	if len(chunks) == 0 {
		return c.windows(trimmed)
	}
	return chunks
}

// windows cuts text into fixed windows of Size runes advancing by Size-Overlap.
// The last window always reaches the end of the text.
func (c *Chunker) windows(text string) []string {
	runes := []rune(text)
	stride := c.size - c.overlap

	var chunks []string
	for i := 0; i < len(runes); i += stride {
		end := min(i+c.size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Split chunks text with the given parameters.
func Split(text string, size, overlap int) ([]string, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// splitSentences cuts text after terminal punctuation that is followed by whitespace.
// It returns the sentences and the number of boundaries found.
func splitSentences(text string) ([]string, int) {
	matches := sentenceBoundary.FindAllStringIndex(text, -1)

	sentences := make([]string, 0, len(matches)+1)
	start := 0
	for _, m := range matches {
		// punctuation is a single byte, so the sentence ends right after it
		sentences = append(sentences, text[start:m[0]+1])
		start = m[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences, len(matches)
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}
