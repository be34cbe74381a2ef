package store

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// ToolResultChunk is one semantically-searchable slice of an externalized
// tool result.
type ToolResultChunk struct {
	ID         string
	ToolCallID string
	Index      int
	Content    string
	Embedding  []float32
}

// PutToolResultChunks replaces all chunks for a tool call in a single
// transaction.
func (s *Store) PutToolResultChunks(ctx context.Context, toolCallID string, chunks []ToolResultChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: put chunks begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_result_chunks WHERE tool_call_id = ?`, toolCallID); err != nil {
		return fmt.Errorf("store: put chunks delete: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tool_result_chunks (id, tool_call_id, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: put chunks prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, toolCallID, c.Index, c.Content, encodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("store: put chunk: %w", err)
		}
	}
	return tx.Commit()
}

// ScoredChunk is a tool-result chunk ranked by cosine similarity to a
// query embedding.
type ScoredChunk struct {
	Chunk ToolResultChunk
	Score float32
}

// SearchToolResultChunks returns the topK chunks for toolCallID ranked by
// cosine similarity to queryEmbedding. An empty toolCallID searches across
// all tool results.
func (s *Store) SearchToolResultChunks(ctx context.Context, toolCallID string, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	query := `SELECT id, tool_call_id, chunk_index, content, embedding FROM tool_result_chunks`
	var args []any
	if toolCallID != "" {
		query += ` WHERE tool_call_id = ?`
		args = append(args, toolCallID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search chunks: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		var c ToolResultChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.ToolCallID, &c.Index, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(blob)
		scored = append(scored, ScoredChunk{Chunk: c, Score: cosineSimilarity(queryEmbedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// DeleteToolResultChunks removes all chunks for a tool call (used on
// forget_all / cleanup).
func (s *Store) DeleteToolResultChunks(ctx context.Context, toolCallID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_result_chunks WHERE tool_call_id = ?`, toolCallID)
	if err != nil {
		return fmt.Errorf("store: delete chunks: %w", err)
	}
	return nil
}

// cosineSimilarity is shared by the tool-result and fact stores.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
