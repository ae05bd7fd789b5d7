package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrDimensionMismatch indicates the backend returned a vector whose
// length disagrees with the deployment's fixed dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// minEmbeddableRunes is the smallest input the backend is asked to
// embed. Shorter inputs get the zero vector: embedding models behave
// unpredictably on degenerate input, and the zero vector keeps the
// operation deterministic.
const minEmbeddableRunes = 2

// GuardedEmbedder wraps an Embedder with the deployment's dimension
// contract: every returned vector has exactly Dimension components and
// unit length, and empty or near-empty text yields the zero vector
// without a backend call.
type GuardedEmbedder struct {
	inner     Embedder
	dimension int
}

var _ Embedder = (*GuardedEmbedder)(nil)

// NewGuardedEmbedder wraps inner with dimension and degenerate-input
// guards. dimension must be positive.
func NewGuardedEmbedder(inner Embedder, dimension int) (*GuardedEmbedder, error) {
	if inner == nil {
		return nil, errors.New("embedder required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	return &GuardedEmbedder{inner: inner, dimension: dimension}, nil
}

// Dimension returns the fixed embedding dimension.
func (g *GuardedEmbedder) Dimension() int {
	return g.dimension
}

// EmbedText generates a guarded embedding for a single text.
func (g *GuardedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !embeddable(text) {
		return make([]float32, g.dimension), nil
	}

	vec, err := g.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return g.check(vec)
}

// EmbedTexts generates guarded embeddings for a batch of texts.
// Degenerate entries become zero vectors; only the remainder is sent to
// the backend, in one call.
func (g *GuardedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	live := make([]string, 0, len(texts))
	liveIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if embeddable(text) {
			live = append(live, text)
			liveIdx = append(liveIdx, i)
		} else {
			out[i] = make([]float32, g.dimension)
		}
	}

	if len(live) == 0 {
		return out, nil
	}

	vecs, err := g.inner.EmbedTexts(ctx, live)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(live) {
		return nil, fmt.Errorf("embedding result mismatch: expected %d, received %d", len(live), len(vecs))
	}

	for i, vec := range vecs {
		checked, err := g.check(vec)
		if err != nil {
			return nil, err
		}
		out[liveIdx[i]] = checked
	}
	return out, nil
}

func (g *GuardedEmbedder) check(vec []float32) ([]float32, error) {
	if len(vec) != g.dimension {
		return nil, fmt.Errorf("%w: expected %d components, received %d", ErrDimensionMismatch, g.dimension, len(vec))
	}
	return Normalize(vec), nil
}

// embeddable reports whether the text is substantial enough to send to
// the embedding backend.
func embeddable(text string) bool {
	count := 0
	for range strings.TrimSpace(text) {
		count++
		if count >= minEmbeddableRunes {
			return true
		}
	}
	return false
}

// Normalize scales a vector to unit length.
// Returns a new vector; a zero vector stays zero.
func Normalize(v []float32) []float32 {
	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}
