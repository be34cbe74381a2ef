package factstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/scorer"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// PutSummary inserts a summary, merging into an existing summary whose
// embedding exceeds DefaultSummaryDedupThreshold cosine similarity instead
// of creating a near-duplicate row.
func (s *Store) PutSummary(ctx context.Context, sum *models.Summary) (*models.Summary, error) {
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}

	existing, err := s.ListSummaries(ctx, sum.Scope, sum.ScopeID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if scorer.CosineSimilarity(e.Embedding, sum.Embedding) >= DefaultSummaryDedupThreshold {
			merged := *e
			merged.Content = sum.Content
			merged.Embedding = sum.Embedding
			merged.SpanEnd = sum.SpanEnd
			return &merged, s.upsertSummary(ctx, &merged)
		}
	}
	return sum, s.upsertSummary(ctx, sum)
}

func (s *Store) upsertSummary(ctx context.Context, sum *models.Summary) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO summaries (id, scope, scope_id, content, embedding, span_start, span_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, span_end = excluded.span_end
	`, sum.ID, string(sum.Scope), sum.ScopeID, sum.Content, encodeVec(sum.Embedding), sum.SpanStart, sum.SpanEnd, sum.CreatedAt)
	if err != nil {
		return fmt.Errorf("factstore: upsert summary: %w", err)
	}
	return nil
}

// ListSummaries returns every summary for a scope, oldest first.
func (s *Store) ListSummaries(ctx context.Context, scope models.FactScope, scopeID string) ([]*models.Summary, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, scope, scope_id, content, embedding, span_start, span_end, created_at
		FROM summaries WHERE scope = ? AND scope_id = ? ORDER BY created_at ASC
	`, string(scope), scopeID)
	if err != nil {
		return nil, fmt.Errorf("factstore: list summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.Summary
	for rows.Next() {
		var sum models.Summary
		var scopeStr string
		var blob []byte
		if err := rows.Scan(&sum.ID, &scopeStr, &sum.ScopeID, &sum.Content, &blob, &sum.SpanStart, &sum.SpanEnd, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("factstore: scan summary: %w", err)
		}
		sum.Scope = models.FactScope(scopeStr)
		sum.Embedding = decodeVec(blob)
		out = append(out, &sum)
	}
	return out, rows.Err()
}
