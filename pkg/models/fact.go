package models

import "time"

// FactScope is the visibility scope of a stored fact or summary. Unlike the
// channel-oriented MemoryScope, FactScope reflects the three-tier visibility
// the context engine itself reasons about: per-user, per-agent, and
// per-session facts.
type FactScope string

const (
	FactScopeUser    FactScope = "user"
	FactScopeAgent   FactScope = "agent"
	FactScopeSession FactScope = "session"
)

// FactCategory classifies an extracted fact for retrieval grouping and
// conflict-resolution policy selection.
type FactCategory string

const (
	CategoryPreference  FactCategory = "preference"
	CategoryDecision    FactCategory = "decision"
	CategoryProject     FactCategory = "project"
	CategorySystem      FactCategory = "system"
	CategoryErrorPattern FactCategory = "error_pattern"
	CategoryPersonal    FactCategory = "personal"
	CategoryWorkflow    FactCategory = "workflow"
)

// ConflictStrategy names how the conflict resolver reconciles two facts that
// share a dedupe key but disagree in content.
type ConflictStrategy string

const (
	ConflictKeepLatest           ConflictStrategy = "keep_latest"
	ConflictKeepHighestConfidence ConflictStrategy = "keep_highest_confidence"
	ConflictMerge                ConflictStrategy = "merge"
	ConflictAskUser              ConflictStrategy = "ask_user"
)

// Fact is a single piece of structured knowledge extracted from a
// conversation, scoped for later retrieval by the selector. UserID is
// always present; AgentID is required at Scope ∈ {agent, session};
// SessionID is required at Scope = session. A user-scope fact is visible
// to every agent acting on that user's behalf; an agent-scope fact is
// invisible to other agents; a session-scope fact additionally requires a
// matching SessionID.
type Fact struct {
	ID             string         `json:"id"`
	Scope          FactScope      `json:"scope"`
	UserID         string         `json:"user_id"`
	AgentID        string         `json:"agent_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Category       FactCategory   `json:"category"`
	Key            string         `json:"key"`   // dedupe key, e.g. "preference:editor"
	Value          string         `json:"value"` // natural-language statement of the fact
	Confidence     float32        `json:"confidence"`
	SourceID       string         `json:"source_id,omitempty"` // originating message/interaction id
	Embedding      []float32      `json:"-"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
}

// Summary is a rolling condensation of an interaction window, stored at the
// same scopes as Fact.
type Summary struct {
	ID        string    `json:"id"`
	Scope     FactScope `json:"scope"`
	ScopeID   string    `json:"scope_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	SpanStart time.Time `json:"span_start"`
	SpanEnd   time.Time `json:"span_end"`
	CreatedAt time.Time `json:"created_at"`
}

// Pattern is a recurring behavioral observation (e.g. a repeated error or
// workflow) promoted from multiple related facts.
type Pattern struct {
	ID          string    `json:"id"`
	Scope       FactScope `json:"scope"`
	ScopeID     string    `json:"scope_id"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	FactIDs     []string  `json:"fact_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InteractionType classifies an audit entry logged against a fact.
type InteractionType string

const (
	InteractionExtracted  InteractionType = "extracted"
	InteractionRetrieved  InteractionType = "retrieved"
	InteractionReinforced InteractionType = "reinforced"
	InteractionCorrected  InteractionType = "corrected"
	InteractionDeleted    InteractionType = "deleted"
)

// Interaction is an append-only audit entry against a fact: it records
// every extraction, retrieval, reinforcement, correction, or deletion the
// fact has been through. Interactions cascade-delete with their fact.
type Interaction struct {
	ID        string          `json:"id"`
	FactID    string          `json:"fact_id"`
	Type      InteractionType `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeferredConflict is a pending human decision produced by the ask_user
// conflict-resolution strategy: the incoming fact's content is captured
// here without mutating the live fact it conflicts with.
type DeferredConflict struct {
	ID                 string    `json:"id"`
	ExistingFactID     string    `json:"existing_fact_id"`
	IncomingValue      string    `json:"incoming_value"`
	IncomingConfidence float32   `json:"incoming_confidence"`
	IncomingSourceID   string    `json:"incoming_source_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// FactConflict describes two facts sharing a dedupe key that disagree.
type FactConflict struct {
	Existing *Fact
	Incoming *Fact
	Strategy ConflictStrategy
}
