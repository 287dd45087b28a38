package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// DefaultStaticDimensions is the static embedder's default dimension.
const DefaultStaticDimensions = 256

// Weights for vector generation.
const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// stopWords are dropped before word hashing so that shared function words
// do not dominate similarity between short texts.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"be": true, "to": true, "of": true, "and": true, "or": true, "in": true,
	"on": true, "at": true, "for": true, "with": true, "it": true, "this": true,
	"that": true, "by": true, "as": true, "from": true, "my": true, "i": true,
}

// StaticEmbedder hashes words and character trigrams into a fixed-size
// vector. It needs no network or model, is deterministic, and captures
// lexical overlap only.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder creates a static embedder. dims <= 0 selects the default.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates the embedding for text. Whitespace-only text yields a
// zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	vector := make([]float32, e.dims)
	words := tokenizeWords(text)
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		vector[hashToIndex("w:"+w, e.dims)] += wordWeight
	}
	for _, w := range words {
		for _, g := range trigrams(w) {
			vector[hashToIndex("g:"+g, e.dims)] += trigramWeight
		}
	}
	return normalizeVector(vector), nil
}

// tokenizeWords lowercases text and splits it on anything that is not a
// letter or digit.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the character trigrams of a word padded with boundary
// markers, so short words still contribute.
func trigrams(word string) []string {
	runes := []rune("^" + word + "$")
	if len(runes) < trigramSize {
		return nil
	}
	out := make([]string, 0, len(runes)-trigramSize+1)
	for i := 0; i+trigramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+trigramSize]))
	}
	return out
}

// hashToIndex uses FNV-64a to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-%d", e.dims)
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
