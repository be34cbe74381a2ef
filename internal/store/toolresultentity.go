package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StoredToolResultRow is the persistence-layer shape of a stored tool
// result; internal/toolresult maps it to/from models.StoredToolResult.
type StoredToolResultRow struct {
	ID          string
	ContentHash string
	SessionID   string
	ToolUseID   string
	ToolName    string
	FullText    string
	PreviewText string
	TokenCount  int
	Metadata    map[string]any
	CreatedAt   time.Time
	AccessedAt  time.Time
	ExpiresAt   time.Time
}

// PutToolResult inserts a stored tool result, or returns the existing row
// unchanged if one with the same ContentHash already exists (idempotent
// storage per spec).
func (s *Store) PutToolResult(ctx context.Context, row StoredToolResultRow) (StoredToolResultRow, error) {
	if existing, ok, err := s.findToolResultByHash(ctx, row.ContentHash); err != nil {
		return StoredToolResultRow{}, err
	} else if ok {
		return existing, nil
	}

	metadataJSON, err := json.Marshal(row.Metadata)
	if err != nil {
		return StoredToolResultRow{}, fmt.Errorf("store: marshal tool result metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_results (
			id, content_hash, session_id, tool_use_id, tool_name,
			full_text, preview_text, token_count, metadata,
			created_at, accessed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.ContentHash, row.SessionID, row.ToolUseID, row.ToolName,
		row.FullText, row.PreviewText, row.TokenCount, string(metadataJSON),
		row.CreatedAt, row.AccessedAt, row.ExpiresAt,
	)
	if err != nil {
		return StoredToolResultRow{}, fmt.Errorf("store: put tool result: %w", err)
	}
	return row, nil
}

func (s *Store) findToolResultByHash(ctx context.Context, contentHash string) (StoredToolResultRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, session_id, tool_use_id, tool_name,
		       full_text, preview_text, token_count, metadata,
		       created_at, accessed_at, expires_at
		FROM tool_results WHERE content_hash = ?
	`, contentHash)
	result, err := scanToolResultRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return StoredToolResultRow{}, false, nil
		}
		return StoredToolResultRow{}, false, err
	}
	return result, true, nil
}

// GetToolResult fetches a stored tool result by id and bumps its
// accessed_at (for LRU eviction), returning ok=false if id is unknown.
func (s *Store) GetToolResult(ctx context.Context, id string) (StoredToolResultRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, session_id, tool_use_id, tool_name,
		       full_text, preview_text, token_count, metadata,
		       created_at, accessed_at, expires_at
		FROM tool_results WHERE id = ?
	`, id)
	result, err := scanToolResultRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return StoredToolResultRow{}, false, nil
		}
		return StoredToolResultRow{}, false, fmt.Errorf("store: get tool result: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE tool_results SET accessed_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return StoredToolResultRow{}, false, fmt.Errorf("store: touch tool result: %w", err)
	}
	return result, true, nil
}

// CountToolResults returns the total number of stored tool results.
func (s *Store) CountToolResults(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_results`).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count tool results: %w", err)
	}
	return count, nil
}

// EvictExpiredToolResults deletes rows past their TTL, returning the
// number removed.
func (s *Store) EvictExpiredToolResults(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_results WHERE expires_at IS NOT NULL AND expires_at < ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("store: evict expired tool results: %w", err)
	}
	return res.RowsAffected()
}

// EvictLRUToolResults deletes the least-recently-accessed rows beyond
// ceiling, returning the number removed.
func (s *Store) EvictLRUToolResults(ctx context.Context, ceiling int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_results WHERE id IN (
			SELECT id FROM tool_results
			ORDER BY accessed_at ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM tool_results) - ?)
		)
	`, ceiling)
	if err != nil {
		return 0, fmt.Errorf("store: evict lru tool results: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToolResultRow(row rowScanner) (StoredToolResultRow, error) {
	var r StoredToolResultRow
	var metadataJSON sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(
		&r.ID, &r.ContentHash, &r.SessionID, &r.ToolUseID, &r.ToolName,
		&r.FullText, &r.PreviewText, &r.TokenCount, &metadataJSON,
		&r.CreatedAt, &r.AccessedAt, &expiresAt,
	); err != nil {
		return StoredToolResultRow{}, err
	}
	if expiresAt.Valid {
		r.ExpiresAt = expiresAt.Time
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &r.Metadata)
	}
	return r, nil
}
