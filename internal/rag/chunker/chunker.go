// Package chunker splits oversize tool-result text into overlapping
// windows sized for embedding and retrieval.
package chunker

// Chunker defines the interface for text chunking strategies. Chunkers
// split a plain-text tool result into smaller pieces suitable for
// embedding and retrieval.
type Chunker interface {
	// Chunk splits text into chunks.
	Chunk(text string) ([]Chunk, error)

	// Name returns the chunker name for logging and debugging.
	Name() string
}

// Config contains common configuration for chunkers.
type Config struct {
	// ChunkSize is the target size of each chunk in characters.
	// Default: 2000 (~500 tokens at 4 chars/token).
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of characters to overlap between chunks.
	// Default: 200 (~50 tokens).
	ChunkOverlap int `yaml:"chunk_overlap"`

	// MinChunkSize is the minimum chunk size to keep. Chunks smaller than
	// this are merged with the previous chunk.
	// Default: 100
	MinChunkSize int `yaml:"min_chunk_size"`

	// PreserveWhitespace keeps leading/trailing whitespace in chunks.
	// Default: false
	PreserveWhitespace bool `yaml:"preserve_whitespace"`

	// KeepSeparators includes separators at the end of chunks.
	// Default: true
	KeepSeparators bool `yaml:"keep_separators"`
}

// DefaultConfig returns the default chunker configuration, sized for the
// tool-result chunking budget (~500 tokens per chunk, ~50 overlap).
func DefaultConfig() Config {
	return Config{
		ChunkSize:          2000,
		ChunkOverlap:       200,
		MinChunkSize:       100,
		PreserveWhitespace: false,
		KeepSeparators:     true,
	}
}

// Chunk represents a piece of text with position information.
type Chunk struct {
	// Content is the chunk text.
	Content string

	// StartOffset is the character offset in the original text.
	StartOffset int

	// EndOffset is the ending character offset.
	EndOffset int

	// Index is the chunk's position among the chunks of its source text.
	Index int
}

// TokenCounter estimates token count for text. Used for chunk size
// validation and metadata.
type TokenCounter interface {
	// Count returns the estimated token count for text.
	Count(text string) int
}

// SimpleTokenCounter estimates tokens by dividing character count by
// average chars per token.
type SimpleTokenCounter struct {
	// CharsPerToken is the average characters per token (default: 4).
	CharsPerToken int
}

// Count returns the estimated token count.
func (c *SimpleTokenCounter) Count(text string) int {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4 // ~4 chars per token for English
	}
	return (len(text) + cpt - 1) / cpt
}
