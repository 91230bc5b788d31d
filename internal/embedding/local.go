package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultLocalDimension matches the small sentence-embedding models the
// hashing backend stands in for.
const DefaultLocalDimension = 384

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "will": true,
	"with": true,
}

// HashingBackend is a deterministic, offline embedder based on signed
// feature hashing of word unigrams and bigrams. It needs no model files,
// which makes it the default for local runs and tests.
type HashingBackend struct {
	dimension int
}

// NewHashingBackend creates a HashingBackend producing vectors of size dimension.
func NewHashingBackend(dimension int) (*HashingBackend, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	return &HashingBackend{dimension: dimension}, nil
}

// LocalLoader returns a Loader for a HashingBackend.
func LocalLoader(dimension int) Loader {
	return func(context.Context) (Backend, error) {
		return NewHashingBackend(dimension)
	}
}

// Dimension returns the vector size.
func (b *HashingBackend) Dimension() int { return b.dimension }

// EmbedBatch embeds each text independently.
func (b *HashingBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = b.vector(text)
	}
	return out, nil
}

func (b *HashingBackend) vector(text string) []float32 {
	vec := make([]float32, b.dimension)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			b.add(vec, trimmed, 1)
		}
		return vec
	}

	for i, tok := range tokens {
		b.add(vec, tok, 1)
		if i > 0 {
			b.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vec
}

// add hashes feature into a bucket; one hash bit picks the sign so that
// collisions tend to cancel out.
func (b *HashingBackend) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(b.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lowercases text and splits it on anything that is not a letter,
// digit or combining mark. Marks keep Indic vowel signs attached to their words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})

	out := words[:0]
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
