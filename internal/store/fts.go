package store

import (
	"context"
	"fmt"
)

// FTSHit is a single full-text search match.
type FTSHit struct {
	MessageID string
	Role      string
	Content   string
	Rank      float64
}

// IndexMessage inserts or replaces a message's full-text entry.
func (s *Store) IndexMessage(ctx context.Context, messageID, role, content string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message_fts WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("store: index message delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO message_fts (message_id, role, content) VALUES (?, ?, ?)`,
		messageID, role, content,
	); err != nil {
		return fmt.Errorf("store: index message insert: %w", err)
	}
	return nil
}

// SearchFTS runs an FTS5 MATCH query and returns hits ordered by bm25 rank
// (best first). A malformed matchExpr is reported as an error so callers
// can fail open (skip the pre-filter) rather than surface it to the user.
func (s *Store) SearchFTS(ctx context.Context, matchExpr string, limit int) ([]FTSHit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, bm25(message_fts) AS rank
		FROM message_fts
		WHERE message_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search fts: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.MessageID, &h.Role, &h.Content, &h.Rank); err != nil {
			return nil, fmt.Errorf("store: scan fts hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
