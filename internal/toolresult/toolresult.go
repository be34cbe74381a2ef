// Package toolresult externalizes oversize tool results: a result whose
// estimated token count exceeds a per-tool threshold is persisted
// out-of-band and the transcript is given a compact placeholder in its
// place, retrievable later by a stable "tr_XXXXXXXX" identifier.
//
// Grounded on the reference agent runtime's pattern of replacing large
// tool payloads with a reference and lazily re-hydrating on demand,
// generalized to per-tool thresholds, a summarization-then-truncation
// fallback ladder, and multiple retrieval modes.
package toolresult

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/config"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/rag/chunker"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
)

const (
	// charsPerToken is the rough token-size estimator used across the
	// pipeline wherever a real tokenizer isn't warranted.
	charsPerToken = 4

	// DefaultTTL is how long a stored tool result survives before TTL
	// eviction, absent a configured override.
	DefaultTTL = 24 * time.Hour

	// DefaultCeiling is the LRU ceiling on stored tool results.
	DefaultCeiling = 1000

	minSummaryChars    = 150
	targetSummaryChars = 300
	maxSummaryChars    = 500
)

// ErrNotFound is returned by Retrieve when result_id is unknown. It
// carries a hint about the expected id shape since callers often mistype
// or hallucinate one.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("toolresult: %q not found (ids look like tr_XXXXXXXX)", e.ID)
}

// EstimateTokens approximates a token count from character length.
func EstimateTokens(text string) int {
	return (len([]rune(text)) + charsPerToken - 1) / charsPerToken
}

// IsOversize reports whether text exceeds the configured threshold for
// toolKind (falling back to the configured default threshold for an
// unrecognized kind).
func IsOversize(cfg config.ToolResultConfig, toolKind, text string) bool {
	threshold, ok := cfg.Thresholds[toolKind]
	if !ok || threshold <= 0 {
		threshold = cfg.Default
	}
	return EstimateTokens(text) > threshold
}

// Store is the subsystem's entry point, wrapping the persistence layer
// with eligibility checks, summarization, truncation, and retrieval.
type Store struct {
	db        *store.Store
	generator modelclient.Generator
	embedder  modelclient.Embedder
	cfg       config.ToolResultConfig
	splitter  *chunker.RecursiveCharacterTextSplitter
	rand      *rand.Rand
}

// New constructs a Store. generator and embedder may both be nil: without
// a generator, summarization always falls back to truncation; without an
// embedder, chunked semantic search is unavailable.
func New(db *store.Store, generator modelclient.Generator, embedder modelclient.Embedder, cfg config.ToolResultConfig) *Store {
	chunkCfg := chunker.DefaultConfig()
	if cfg.ChunkSize > 0 {
		chunkCfg.ChunkSize = cfg.ChunkSize
	}
	if cfg.ChunkOverlap > 0 {
		chunkCfg.ChunkOverlap = cfg.ChunkOverlap
	}
	return &Store{
		db:        db,
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
		splitter:  chunker.NewRecursiveCharacterTextSplitter(chunkCfg),
		rand:      rand.New(rand.NewSource(1)),
	}
}

// Externalize persists an oversize tool result and returns the placeholder
// block that should replace it in the transcript. If content has already
// been stored (same content hash), the existing record is reused.
func (s *Store) Externalize(ctx context.Context, sessionID, toolUseID, toolKind, toolName, content string) (string, error) {
	hash := contentHash(content)
	tokenCount := EstimateTokens(content)

	preview := s.summarizeOrTruncate(ctx, toolKind, content)

	row := store.StoredToolResultRow{
		ID:          generateID(s.rand),
		ContentHash: hash,
		SessionID:   sessionID,
		ToolUseID:   toolUseID,
		ToolName:    toolName,
		FullText:    content,
		PreviewText: preview,
		TokenCount:  tokenCount,
		CreatedAt:   time.Now(),
		AccessedAt:  time.Now(),
		ExpiresAt:   time.Now().Add(DefaultTTL),
	}

	stored, err := s.db.PutToolResult(ctx, row)
	if err != nil {
		return "", fmt.Errorf("toolresult: externalize: %w", err)
	}

	if stored.ID == row.ID && s.embedder != nil {
		if err := s.indexChunks(ctx, stored.ID, toolName, content); err != nil {
			// Chunked search is a best-effort enhancement; losing it
			// must not fail externalization.
			_ = err
		}
	}

	return formatPlaceholder(stored, toolName), nil
}

func (s *Store) indexChunks(ctx context.Context, id, toolName, content string) error {
	chunks, err := s.splitter.Chunk(content)
	if err != nil {
		return err
	}
	stored := make([]store.ToolResultChunk, 0, len(chunks))
	for i, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.Content)
		if err != nil {
			return err
		}
		stored = append(stored, store.ToolResultChunk{
			ID:      fmt.Sprintf("%s-%d", id, i),
			Index:   i,
			Content: c.Content,
			Embedding: vec,
		})
	}
	return s.db.PutToolResultChunks(ctx, id, stored)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func generateID(r *rand.Rand) string {
	b := make([]byte, 4)
	r.Read(b)
	return "tr_" + hex.EncodeToString(b)
}

func formatPlaceholder(row store.StoredToolResultRow, toolName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[STORED: %s]\n", row.ID)
	fmt.Fprintf(&sb, "🔧 tool: %s\n", toolName)
	fmt.Fprintf(&sb, "📏 size: ~%d tokens\n", row.TokenCount)
	fmt.Fprintf(&sb, "🕒 stored: %s\n", row.CreatedAt.UTC().Format(time.RFC3339))
	sb.WriteString("\n")
	sb.WriteString(row.PreviewText)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Retrieve full content with result_id=%s\n", row.ID)
	return sb.String()
}

// RetrieveMode selects how Retrieve slices the stored full text.
type RetrieveMode string

const (
	ModeFull   RetrieveMode = "full"
	ModeSearch RetrieveMode = "search"
	ModeLines  RetrieveMode = "lines"
	ModeAround RetrieveMode = "around"
)

// RetrieveOptions parametrizes a Retrieve call; fields only apply to the
// matching mode.
type RetrieveOptions struct {
	Mode         RetrieveMode
	Query        string // ModeSearch
	ContextLines int    // ModeSearch, ModeAround
	StartLine    int    // ModeLines (1-indexed, inclusive)
	EndLine      int    // ModeLines (1-indexed, inclusive)
	Line         int    // ModeAround (1-indexed)
	MaxTokens    int    // 0 means unbounded
}

// Retrieve fetches a stored tool result and renders it per opts.Mode,
// always prefixed with a metadata header, honoring MaxTokens by further
// truncating with a visible marker.
func (s *Store) Retrieve(ctx context.Context, resultID string, opts RetrieveOptions) (string, error) {
	row, ok, err := s.db.GetToolResult(ctx, resultID)
	if err != nil {
		return "", fmt.Errorf("toolresult: retrieve: %w", err)
	}
	if !ok {
		return "", &ErrNotFound{ID: resultID}
	}

	var body string
	switch opts.Mode {
	case ModeSearch:
		body = searchLines(row.FullText, opts.Query, opts.ContextLines)
	case ModeLines:
		body = lineRange(row.FullText, opts.StartLine, opts.EndLine)
	case ModeAround:
		body = aroundLine(row.FullText, opts.Line, opts.ContextLines)
	default:
		body = row.FullText
	}

	header := fmt.Sprintf("[%s] tool=%s size=~%d tokens stored=%s\n\n",
		row.ID, row.ToolName, row.TokenCount, row.CreatedAt.UTC().Format(time.RFC3339))
	result := header + body

	if opts.MaxTokens > 0 {
		result = boundByTokens(result, opts.MaxTokens)
	}
	return result, nil
}

func lineRange(text string, start, end int) string {
	lines := strings.Split(text, "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) || end < start {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n")
}

func aroundLine(text string, line, context int) string {
	start := line - context
	end := line + context
	return lineRange(text, start, end)
}

func searchLines(text, query string, context int) string {
	if query == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	lowerQuery := strings.ToLower(query)
	var matches []int
	for i, l := range lines {
		if strings.Contains(strings.ToLower(l), lowerQuery) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return "(no matches for query)"
	}

	var sb strings.Builder
	lastEnd := -1
	for _, m := range matches {
		start := m - context
		if start < 0 {
			start = 0
		}
		end := m + context
		if end >= len(lines) {
			end = len(lines) - 1
		}
		if start <= lastEnd {
			start = lastEnd + 1
		}
		if start > end {
			continue
		}
		if lastEnd >= 0 {
			sb.WriteString("...\n")
		}
		sb.WriteString(strings.Join(lines[start:end+1], "\n"))
		sb.WriteString("\n")
		lastEnd = end
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func boundByTokens(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "\n[... truncated to fit max_tokens budget ...]"
}
