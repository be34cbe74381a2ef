package toolresult

import (
	"context"
	"fmt"
)

// SearchHit is one semantically-ranked tool-result chunk.
type SearchHit struct {
	ResultID string
	ToolName string
	Chunk    string
	Score    float32
}

// SearchOptions filters a chunked semantic search over stored tool
// results.
type SearchOptions struct {
	ToolFilter    string
	SessionFilter string
	TopK          int
	MinScore      float32
}

// SearchResults embeds query and ranks stored tool-result chunks by
// cosine similarity, optionally filtered by tool name or session. Returns
// an empty slice (not an error) if no embedder is configured.
func (s *Store) SearchResults(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	if s.embedder == nil {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("toolresult: embed search query: %w", err)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	scored, err := s.db.SearchToolResultChunks(ctx, "", queryVec, 0)
	if err != nil {
		return nil, fmt.Errorf("toolresult: search chunks: %w", err)
	}

	var hits []SearchHit
	for _, sc := range scored {
		if opts.MinScore > 0 && sc.Score < opts.MinScore {
			continue
		}
		resultID, toolName, ok := s.resolveChunkOwner(ctx, sc.Chunk.ID)
		if !ok {
			continue
		}
		if opts.ToolFilter != "" && toolName != opts.ToolFilter {
			continue
		}
		hits = append(hits, SearchHit{
			ResultID: resultID,
			ToolName: toolName,
			Chunk:    sc.Chunk.Content,
			Score:    sc.Score,
		})
		if len(hits) >= topK {
			break
		}
	}
	return hits, nil
}

// resolveChunkOwner maps a chunk id ("<result_id>-<index>") back to the
// stored tool result it belongs to.
func (s *Store) resolveChunkOwner(ctx context.Context, chunkID string) (resultID, toolName string, ok bool) {
	idx := lastDash(chunkID)
	if idx < 0 {
		return "", "", false
	}
	id := chunkID[:idx]
	row, found, err := s.db.GetToolResult(ctx, id)
	if err != nil || !found {
		return "", "", false
	}
	return row.ID, row.ToolName, true
}

func lastDash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' {
			return i
		}
	}
	return -1
}
