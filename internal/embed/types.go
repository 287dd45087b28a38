// Package embed converts text into fixed-length, unit-normalized vectors.
//
// Providers (static, OpenAI-compatible, Ollama) implement Embedder. The
// Guard decorator adds the per-call timeout, rate limiting, retry and a
// circuit breaker; CachedEmbedder memoizes repeated texts.
package embed

import (
	"context"
	"math"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns a vector of exactly Dimensions() values.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Provider names accepted by NewFromConfig.
const (
	ProviderStatic = "static"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// normalizeVector returns v scaled to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
