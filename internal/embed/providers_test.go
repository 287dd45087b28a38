package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	// Given: a fake Ollama server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Input)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{3, 4, 0}}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text", Dimensions: 3})
	require.NoError(t, err)
	defer e.Close()

	// When: embedding
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the vector is normalized
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, vec, 1e-6)
}

func TestOllamaEmbedder_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "missing", Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewOllamaEmbedder_Validates(t *testing.T) {
	_, err := NewOllamaEmbedder(OllamaConfig{Model: "", Dimensions: 3})
	assert.Error(t, err)
	_, err = NewOllamaEmbedder(OllamaConfig{Model: "m", Dimensions: 0})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0,2,0]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "text-embedding-3-small", Dimensions: 3})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, vec, 1e-6)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
}

func TestNewFromConfig_BuildsChain(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Dimensions = 32

	e, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer e.Close()

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	_, ok = cached.inner.(*Guard)
	assert.True(t, ok)
	assert.Equal(t, 32, e.Dimensions())

	vec, err := e.Embed(context.Background(), "printer offline")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestNewFromConfig_NoCache(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.CacheSize = 0

	e, err := NewFromConfig(cfg)
	require.NoError(t, err)
	_, ok := e.(*Guard)
	assert.True(t, ok)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "llama"})
	assert.Error(t, err)
}
