package chunker

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ChunkSize != 2000 {
		t.Errorf("ChunkSize = %d, want 2000", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 200 {
		t.Errorf("ChunkOverlap = %d, want 200", cfg.ChunkOverlap)
	}
	if cfg.MinChunkSize != 100 {
		t.Errorf("MinChunkSize = %d, want 100", cfg.MinChunkSize)
	}
	if cfg.PreserveWhitespace != false {
		t.Error("PreserveWhitespace should be false by default")
	}
	if cfg.KeepSeparators != true {
		t.Error("KeepSeparators should be true by default")
	}
}

func TestConfigWithCustomValues(t *testing.T) {
	cfg := Config{
		ChunkSize:          500,
		ChunkOverlap:       100,
		MinChunkSize:       50,
		PreserveWhitespace: true,
		KeepSeparators:     false,
	}

	if cfg.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 100 {
		t.Errorf("ChunkOverlap = %d, want 100", cfg.ChunkOverlap)
	}
	if cfg.MinChunkSize != 50 {
		t.Errorf("MinChunkSize = %d, want 50", cfg.MinChunkSize)
	}
}

func TestSimpleTokenCounter_Count(t *testing.T) {
	tests := []struct {
		name          string
		charsPerToken int
		text          string
		want          int
	}{
		{"empty text", 4, "", 0},
		{"short text default", 0, "hello", 2},
		{"exact multiple", 4, "12345678", 2},
		{"with remainder", 4, "123456789", 3},
		{"custom chars per token", 5, "12345678901234567890", 4},
		{"single character", 4, "a", 1},
		{"unicode text", 4, "Hello world!", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &SimpleTokenCounter{CharsPerToken: tt.charsPerToken}
			got := tc.Count(tt.text)
			if got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewRecursiveCharacterTextSplitter(t *testing.T) {
	tests := []struct {
		name             string
		cfg              Config
		wantChunkSize    int
		wantChunkOverlap int
		wantMinChunkSize int
	}{
		{
			name:             "default values when zero",
			cfg:              Config{ChunkSize: 0, ChunkOverlap: 0, MinChunkSize: 0},
			wantChunkSize:    2000,
			wantChunkOverlap: 0,
			wantMinChunkSize: 100,
		},
		{
			name:             "custom values",
			cfg:              Config{ChunkSize: 500, ChunkOverlap: 100, MinChunkSize: 50},
			wantChunkSize:    500,
			wantChunkOverlap: 100,
			wantMinChunkSize: 50,
		},
		{
			name:             "overlap exceeds chunk size - adjusted",
			cfg:              Config{ChunkSize: 100, ChunkOverlap: 150},
			wantChunkSize:    100,
			wantChunkOverlap: 20,
			wantMinChunkSize: 100,
		},
		{
			name:             "negative overlap - defaults to DefaultConfig overlap",
			cfg:              Config{ChunkSize: 500, ChunkOverlap: -10, MinChunkSize: 50},
			wantChunkSize:    500,
			wantChunkOverlap: 200,
			wantMinChunkSize: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splitter := NewRecursiveCharacterTextSplitter(tt.cfg)
			if splitter.config.ChunkSize != tt.wantChunkSize {
				t.Errorf("ChunkSize = %d, want %d", splitter.config.ChunkSize, tt.wantChunkSize)
			}
			if splitter.config.ChunkOverlap != tt.wantChunkOverlap {
				t.Errorf("ChunkOverlap = %d, want %d", splitter.config.ChunkOverlap, tt.wantChunkOverlap)
			}
			if splitter.config.MinChunkSize != tt.wantMinChunkSize {
				t.Errorf("MinChunkSize = %d, want %d", splitter.config.MinChunkSize, tt.wantMinChunkSize)
			}
		})
	}
}

func TestRecursiveCharacterTextSplitter_Name(t *testing.T) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())
	if splitter.Name() != "recursive_character" {
		t.Errorf("Name() = %q, want %q", splitter.Name(), "recursive_character")
	}
}

func TestRecursiveCharacterTextSplitter_WithSeparators(t *testing.T) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())
	customSeps := []string{"\n\n", "\n", " "}
	splitter.WithSeparators(customSeps)

	if len(splitter.separators) != 3 {
		t.Errorf("separators len = %d, want 3", len(splitter.separators))
	}
}

func TestRecursiveCharacterTextSplitter_WithTokenCounter(t *testing.T) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())
	customTC := &SimpleTokenCounter{CharsPerToken: 3}
	splitter.WithTokenCounter(customTC)

	if splitter.tokenCounter != customTC {
		t.Error("tokenCounter not set correctly")
	}
}

func TestChunk_EmptyContent(t *testing.T) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())

	chunks, err := splitter.Chunk("")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if chunks != nil {
		t.Errorf("Chunk() = %v, want nil for empty content", chunks)
	}
}

func TestChunk_WhitespaceOnlyContent(t *testing.T) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())

	chunks, err := splitter.Chunk("   \n\n\t  ")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if chunks != nil {
		t.Errorf("Chunk() = %v, want nil for whitespace-only content", chunks)
	}
}

func TestChunk_SmallContent(t *testing.T) {
	cfg := Config{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	chunks, err := splitter.Chunk("This is a small piece of text.")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("len(chunks) = %d, want 1", len(chunks))
	}
	if len(chunks[0].Content) == 0 {
		t.Error("Chunk content should not be empty")
	}
}

func TestChunk_WithParagraphSeparation(t *testing.T) {
	cfg := Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	content := "First paragraph with some content here.\n\nSecond paragraph with different content."
	chunks, err := splitter.Chunk(content)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Errorf("Expected at least 2 chunks, got %d", len(chunks))
	}
}

func TestChunk_ChunkIndexSequential(t *testing.T) {
	cfg := Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	content := "First part of the document. Second part of the document. Third part of the document. Fourth part of document."
	chunks, err := splitter.Chunk(content)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("Chunk[%d].Index = %d, want %d", i, chunk.Index, i)
		}
	}
}

func TestChunk_WithOverlap(t *testing.T) {
	cfg := Config{ChunkSize: 50, ChunkOverlap: 20, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	content := "First part of document. Second part of document. Third part of document."
	chunks, err := splitter.Chunk(content)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Skip("Need at least 2 chunks to test overlap")
	}
	t.Logf("Got %d chunks", len(chunks))
}

func TestChunk_VeryLongText(t *testing.T) {
	cfg := Config{ChunkSize: 100, ChunkOverlap: 20, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		sb.WriteByte('a' + byte(i%26))
		if i > 0 && i%100 == 0 {
			sb.WriteByte('\n')
		}
	}

	chunks, err := splitter.Chunk(sb.String())
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Error("Expected multiple chunks for long text")
	}
	t.Logf("Created %d chunks for 10KB content", len(chunks))
}

func TestChunk_SingleLongWord(t *testing.T) {
	cfg := Config{ChunkSize: 20, ChunkOverlap: 5, MinChunkSize: 5}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	chunks, err := splitter.Chunk("supercalifragilisticexpialidocious")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Error("Expected at least one chunk for long word")
	}
}

func TestNewMarkdownSplitter(t *testing.T) {
	cfg := Config{ChunkSize: 500, ChunkOverlap: 100, MinChunkSize: 50}
	splitter := NewMarkdownSplitter(cfg)

	if splitter.separators[0] != "\n## " {
		t.Errorf("First separator = %q, want %q", splitter.separators[0], "\n## ")
	}
}

func TestDefaultSeparators(t *testing.T) {
	if len(DefaultSeparators) == 0 {
		t.Error("DefaultSeparators should not be empty")
	}
	if DefaultSeparators[0] != "\n\n" {
		t.Errorf("First separator = %q, want %q", DefaultSeparators[0], "\n\n")
	}
	if DefaultSeparators[len(DefaultSeparators)-1] != "" {
		t.Errorf("Last separator = %q, want empty", DefaultSeparators[len(DefaultSeparators)-1])
	}
}

func TestMarkdownSeparators(t *testing.T) {
	if len(MarkdownSeparators) == 0 {
		t.Error("MarkdownSeparators should not be empty")
	}
	if MarkdownSeparators[0] != "\n## " {
		t.Errorf("First separator = %q, want %q", MarkdownSeparators[0], "\n## ")
	}
}

func TestRecursiveCharacterTextSplitter_ImplementsChunker(t *testing.T) {
	var _ Chunker = (*RecursiveCharacterTextSplitter)(nil)
}

func TestChunk_OffsetsAreValid(t *testing.T) {
	cfg := Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 10}
	splitter := NewRecursiveCharacterTextSplitter(cfg)

	content := "First sentence here. Second sentence here. Third sentence here. Fourth here."
	chunks, err := splitter.Chunk(content)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	for i, chunk := range chunks {
		if chunk.StartOffset < 0 {
			t.Errorf("Chunk[%d] StartOffset = %d, should not be negative", i, chunk.StartOffset)
		}
		if chunk.EndOffset <= chunk.StartOffset {
			t.Errorf("Chunk[%d] EndOffset = %d, should be > StartOffset = %d", i, chunk.EndOffset, chunk.StartOffset)
		}
	}
}

func BenchmarkChunk_SmallText(b *testing.B) {
	splitter := NewRecursiveCharacterTextSplitter(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = splitter.Chunk("This is a small piece of text for benchmarking.")
	}
}

func BenchmarkSimpleTokenCounter(b *testing.B) {
	tc := &SimpleTokenCounter{CharsPerToken: 4}
	text := "This is some sample text for token counting benchmark."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tc.Count(text)
	}
}
