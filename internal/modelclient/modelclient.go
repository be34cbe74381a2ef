// Package modelclient defines the interfaces the engine uses to reach a
// model provider for embeddings and for chat/extraction. The concrete
// provider — its identity, credentials, and transport — is the host's
// concern; the engine only ever depends on these interfaces, following the
// reference agent framework's own provider abstraction.
package modelclient

import "context"

// Embedder produces a fixed-dimension vector for a piece of text. The
// remote tier of internal/embedding wraps a go-openai client behind this
// interface; tests and the hash tier never need it at all.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple texts in one round-trip where the
	// provider supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the vector width this embedder produces.
	Dimension() int
}

// CompletionRequest is a single chat/completion call used by the query
// expander, the extractor, and the conflict resolver.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator issues a non-streaming text completion. The engine never
// streams: extraction, expansion, and conflict resolution all want a
// single parseable response.
type Generator interface {
	Generate(ctx context.Context, req CompletionRequest) (string, error)
}

// ModelClient is the full surface the engine asks a host to provide: an
// embed(text) and a generate(prompt, system, temperature, max_tokens)
// capability, per the engine's scope boundary. The identity of the
// underlying provider is irrelevant to every caller of this interface.
type ModelClient interface {
	Embedder
	Generator
}
