package embed

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docindex/internal/config"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// NewProvider creates the bare provider selected by the configuration.
func NewProvider(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderStatic, "":
		return NewStaticEmbedder(cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}

// NewFromConfig builds the full embedding chain: provider, guard, and an
// optional LRU cache in front.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	provider, err := NewProvider(cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	retry := dierrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Embeddings.MaxRetries

	var e Embedder = NewGuard(provider, GuardConfig{
		Timeout:         cfg.EmbedTimeout(),
		Retry:           retry,
		RateLimit:       cfg.Embeddings.RateLimit,
		Burst:           cfg.Embeddings.Burst,
		BreakerFailures: cfg.Embeddings.BreakerFailures,
		BreakerReset:    cfg.BreakerReset(),
	})
	if cfg.Embeddings.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.Embeddings.CacheSize)
	}
	return e, nil
}
