package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingBackend_Deterministic(t *testing.T) {
	b, err := NewHashingBackend(DefaultLocalDimension)
	require.NoError(t, err)

	first, err := b.EmbedBatch(context.Background(), []string{"The tenant must vacate the premises."})
	require.NoError(t, err)
	second, err := b.EmbedBatch(context.Background(), []string{"The tenant must vacate the premises."})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first[0], DefaultLocalDimension)
}

func TestHashingBackend_RelatedTextScoresHigher(t *testing.T) {
	b, err := NewHashingBackend(DefaultLocalDimension)
	require.NoError(t, err)

	vecs, err := b.EmbedBatch(context.Background(), []string{
		"security deposit refund after tenancy ends",
		"when is the security deposit refund due",
		"criminal penalties for forgery of documents",
	})
	require.NoError(t, err)

	related := Cosine(vecs[0], vecs[1])
	unrelated := Cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.Greater(t, related, float32(0.3))
}

func TestHashingBackend_RejectsBadDimension(t *testing.T) {
	_, err := NewHashingBackend(0)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"tenant", "pays", "rent", "2024"}, tokenize("The tenant pays rent, in 2024!"))

	// vowel signs are combining marks and must stay inside the word
	tamil := tokenize("வாடகை ஒப்பந்தம்")
	assert.Equal(t, []string{"வாடகை", "ஒப்பந்தம்"}, tamil)
}

func TestNormalizeAndCosine(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))

	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}
