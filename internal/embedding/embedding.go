// Package embedding selects and wraps a text embedding provider. Three tiers
// are supported: a remote API-backed provider, a local HTTP-served model,
// and a deterministic hash fallback that guarantees the selector always has
// a vector to score against even with no embedding backend configured.
//
// Grounded on the reference agent runtime's embeddings.Provider interface
// and its openai/ollama tier implementations, adapted to the narrower
// modelclient.Embedder contract and wrapped with retry.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/backoff"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
)

// ErrEmptyInput is returned when Embed is called with an empty string.
var ErrEmptyInput = errors.New("embedding: empty input text")

// Tier identifies which embedding backend a provider was built from.
type Tier string

const (
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
	TierHash   Tier = "hash"
)

// Config selects and configures the embedding provider.
type Config struct {
	Tier Tier `yaml:"tier"`

	// Remote (OpenAI-compatible) tier.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Local tier: an HTTP embedding server speaking the Ollama /api/embeddings
	// contract.
	LocalURL string `yaml:"local_url"`

	// HashDimension sizes the deterministic fallback's vectors.
	HashDimension int `yaml:"hash_dimension"`

	// RetryPolicy overrides the default base-1s/factor-2 backoff. MaxRetries
	// of 0 disables retry (single attempt).
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig returns the hash-only fallback tier with no external
// dependencies, the safe default when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		Tier:          TierHash,
		HashDimension: 256,
		MaxRetries:    3,
	}
}

// New builds an Embedder for the configured tier, wrapped with retry.
func New(cfg Config) (modelclient.Embedder, error) {
	if cfg.HashDimension <= 0 {
		cfg.HashDimension = 256
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	var base modelclient.Embedder
	switch cfg.Tier {
	case TierRemote:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding: remote tier requires an API key")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		base = newRemoteEmbedder(cfg.APIKey, cfg.BaseURL, model)
	case TierLocal:
		url := cfg.LocalURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		base = newLocalEmbedder(url, model)
	case TierHash, "":
		base = newHashEmbedder(cfg.HashDimension)
	default:
		return nil, fmt.Errorf("embedding: unknown tier %q", cfg.Tier)
	}

	if cfg.MaxRetries == 0 {
		return base, nil
	}
	return &retryingEmbedder{
		inner:      base,
		maxRetries: cfg.MaxRetries,
		policy: backoff.BackoffPolicy{
			InitialMs: 1000,
			MaxMs:     30000,
			Factor:    2,
			Jitter:    0.1,
		},
	}, nil
}

// retryingEmbedder wraps an Embedder with exponential backoff: base 1s,
// factor 2, up to maxRetries additional attempts after the first failure.
type retryingEmbedder struct {
	inner      modelclient.Embedder
	maxRetries int
	policy     backoff.BackoffPolicy
}

func (r *retryingEmbedder) Dimension() int { return r.inner.Dimension() }

func (r *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := backoff.RetryWithBackoff(ctx, r.policy, r.maxRetries+1, func(_ int) ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (r *retryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := backoff.RetryWithBackoff(ctx, r.policy, r.maxRetries+1, func(_ int) ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}
