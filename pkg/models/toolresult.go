package models

import "time"

// StoredToolResult is an oversize tool result persisted out-of-band and
// referenced from the transcript by ID instead of being inlined. ID is
// idempotent on ContentHash: storing identical content twice returns the
// existing record.
type StoredToolResult struct {
	ID          string // "tr_" + 8 hex chars
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
