// Package factstore persists facts, summaries, and patterns extracted from
// conversation, and retrieves them by scope with a hybrid BM25+cosine
// ranking over the candidates visible to a given user/agent/session.
//
// Grounded on the reference agent runtime's sqlite-vec memory backend
// (scope-filtered SQL, cosine similarity, IEEE-754 blob embeddings) via
// the shared store package, generalized from a single memory scope to the
// fact store's user/agent/session visibility rule and conflict-resolution
// strategies.
package factstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/scorer"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// Default LRU ceilings per spec: once a scope exceeds these counts, the
// lowest-confidence/oldest facts are evicted on write.
const (
	DefaultUserFactCeiling  = 1000
	DefaultAgentFactCeiling = 500

	// DefaultRelatednessThreshold gates whether an incoming fact is
	// compared against an existing one for conflict resolution.
	DefaultRelatednessThreshold = 0.8
	// DefaultSummaryDedupThreshold gates whether a new summary is merged
	// into an existing one instead of inserted.
	DefaultSummaryDedupThreshold = 0.85

	// bm25OverrideThreshold: retrieve_facts always includes a candidate
	// whose BM25 component alone exceeds this, even if its hybrid score
	// falls below minScore or outside the top-K.
	bm25OverrideThreshold = 0.5
)

const factColumns = `id, scope, user_id, agent_id, session_id, category, key, value, confidence, source_id, embedding, metadata, created_at, updated_at, last_accessed_at`

// Store persists and retrieves facts, summaries, and patterns.
type Store struct {
	db *store.Store
}

// New wraps a shared store.Store with fact/summary/pattern operations.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// PutFact validates f's scope preconditions, then inserts it or, if a row
// with the same (user_id, scope, key) already exists, resolves the
// conflict per strategy. It logs an extracted, reinforced, or corrected
// interaction depending on the outcome. Confidence is never a rejection
// criterion here — that floor belongs to the extractor.
func (s *Store) PutFact(ctx context.Context, f *models.Fact, strategy models.ConflictStrategy) (*models.Fact, error) {
	if err := validateScope(f); err != nil {
		return nil, err
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = now
	}

	var existing *models.Fact
	if f.Key != "" {
		var err error
		existing, err = s.findByKey(ctx, f.UserID, f.Scope, f.Key)
		if err != nil {
			return nil, err
		}
	}

	if existing == nil {
		if err := s.upsert(ctx, f); err != nil {
			return nil, err
		}
		if err := s.logInteraction(ctx, f.ID, models.InteractionExtracted); err != nil {
			return nil, err
		}
		return f, nil
	}

	resolved, deferred := resolveConflict(existing, f, strategy)
	if deferred != nil {
		if err := s.putDeferredConflict(ctx, deferred); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if err := s.upsert(ctx, resolved); err != nil {
		return nil, err
	}
	interactionType := models.InteractionReinforced
	if resolved.Value != existing.Value {
		interactionType = models.InteractionCorrected
	}
	if err := s.logInteraction(ctx, resolved.ID, interactionType); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Store) findByKey(ctx context.Context, userID string, scope models.FactScope, key string) (*models.Fact, error) {
	row := s.db.DB().QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM facts WHERE user_id = ? AND scope = ? AND key = ?
	`, factColumns), userID, string(scope), key)
	f, err := scanFact(row)
	if err != nil {
		return nil, nil
	}
	return f, nil
}

func (s *Store) upsert(ctx context.Context, f *models.Fact) error {
	metaJSON, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("factstore: marshal metadata: %w", err)
	}
	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO facts (id, scope, user_id, agent_id, session_id, category, key, value, confidence, source_id, embedding, metadata, created_at, updated_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			value = excluded.value, confidence = excluded.confidence, source_id = excluded.source_id,
			embedding = excluded.embedding, metadata = excluded.metadata, updated_at = excluded.updated_at,
			last_accessed_at = excluded.last_accessed_at
	`,
		f.ID, string(f.Scope), f.UserID, f.AgentID, f.SessionID, string(f.Category), f.Key, f.Value, f.Confidence,
		f.SourceID, encodeVec(f.Embedding), string(metaJSON), f.CreatedAt, f.UpdatedAt, f.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("factstore: upsert fact: %w", err)
	}
	return s.evictOverflow(ctx, f)
}

// scopeIDColumn returns the facts column that identifies scope's visibility
// boundary: user-scope is keyed by user_id, agent-scope by agent_id,
// session-scope by session_id.
func scopeIDColumn(scope models.FactScope) string {
	switch scope {
	case models.FactScopeAgent:
		return "agent_id"
	case models.FactScopeSession:
		return "session_id"
	default:
		return "user_id"
	}
}

func scopeIDValue(f *models.Fact, scope models.FactScope) string {
	switch scope {
	case models.FactScopeAgent:
		return f.AgentID
	case models.FactScopeSession:
		return f.SessionID
	default:
		return f.UserID
	}
}

func (s *Store) evictOverflow(ctx context.Context, f *models.Fact) error {
	ceiling := DefaultAgentFactCeiling
	if f.Scope == models.FactScopeUser {
		ceiling = DefaultUserFactCeiling
	}
	col := scopeIDColumn(f.Scope)
	id := scopeIDValue(f, f.Scope)
	_, err := s.db.DB().ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM facts WHERE id IN (
			SELECT id FROM facts WHERE scope = ? AND %s = ?
			ORDER BY confidence ASC, updated_at ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM facts WHERE scope = ? AND %s = ?) - ?)
		)
	`, col, col), string(f.Scope), id, string(f.Scope), id, ceiling)
	if err != nil {
		return fmt.Errorf("factstore: evict overflow: %w", err)
	}
	return nil
}

// ListByScope returns every fact stored at the given scope under id (the
// user id, agent id, or session id that owns that scope). This is a plain
// single-column lookup; Retrieve's visibility union is the rule actual
// retrieval should use.
func (s *Store) ListByScope(ctx context.Context, scope models.FactScope, id string) ([]*models.Fact, error) {
	col := scopeIDColumn(scope)
	rows, err := s.db.DB().QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM facts WHERE scope = ? AND %s = ?`, factColumns, col), string(scope), id)
	if err != nil {
		return nil, fmt.Errorf("factstore: list by scope: %w", err)
	}
	defer rows.Close()

	var out []*models.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RetrieveParams is the retrieve_facts request: userID is always required;
// agentID/sessionID widen visibility to that agent's and session's scoped
// facts. Scopes/Categories narrow the candidate set when set, otherwise
// every visible scope/category is considered.
type RetrieveParams struct {
	UserID         string
	AgentID        string
	SessionID      string
	Query          string
	QueryEmbedding []float32
	TopK           int
	MinScore       float64
	Scopes         []models.FactScope
	Categories     []models.FactCategory
}

// listVisible unions the rows visible under the user/agent/session
// visibility rule: every user-scope row for UserID, every agent-scope row
// for (UserID, AgentID), and every session-scope row for
// (UserID, AgentID, SessionID) — each gated further by Scopes/Categories
// when set.
func (s *Store) listVisible(ctx context.Context, p RetrieveParams) ([]*models.Fact, error) {
	allowed := func(sc models.FactScope) bool {
		if len(p.Scopes) == 0 {
			return true
		}
		for _, want := range p.Scopes {
			if want == sc {
				return true
			}
		}
		return false
	}

	var clauses []string
	var args []any
	if p.UserID != "" && allowed(models.FactScopeUser) {
		clauses = append(clauses, "(scope = ? AND user_id = ?)")
		args = append(args, string(models.FactScopeUser), p.UserID)
	}
	if p.UserID != "" && p.AgentID != "" && allowed(models.FactScopeAgent) {
		clauses = append(clauses, "(scope = ? AND user_id = ? AND agent_id = ?)")
		args = append(args, string(models.FactScopeAgent), p.UserID, p.AgentID)
	}
	if p.UserID != "" && p.AgentID != "" && p.SessionID != "" && allowed(models.FactScopeSession) {
		clauses = append(clauses, "(scope = ? AND user_id = ? AND agent_id = ? AND session_id = ?)")
		args = append(args, string(models.FactScopeSession), p.UserID, p.AgentID, p.SessionID)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM facts WHERE (%s)`, factColumns, strings.Join(clauses, " OR "))
	if len(p.Categories) > 0 {
		placeholders := make([]string, len(p.Categories))
		for i, c := range p.Categories {
			placeholders[i] = "?"
			args = append(args, string(c))
		}
		query += fmt.Sprintf(" AND category IN (%s)", strings.Join(placeholders, ", "))
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("factstore: list visible: %w", err)
	}
	defer rows.Close()

	var out []*models.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Retrieve ranks every fact visible under p against p.Query using the
// shared hybrid scorer, returning up to p.TopK results above p.MinScore —
// plus, regardless of MinScore or TopK, any candidate whose BM25 component
// alone exceeds bm25OverrideThreshold. Every returned fact has its
// last_accessed_at touched and a retrieved interaction logged.
func (s *Store) Retrieve(ctx context.Context, p RetrieveParams) ([]*models.Fact, error) {
	candidates, err := s.listVisible(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	docs := make([]scorer.Document, len(candidates))
	for i, f := range candidates {
		docs[i] = scorer.Document{ID: f.ID, Text: f.Value, Embedding: f.Embedding}
	}
	sc := scorer.New(scorer.DefaultWeights())
	ranked := sc.Score(p.Query, p.QueryEmbedding, docs)
	bm25Only := sc.BM25Only(p.Query, docs)

	byID := make(map[string]*models.Fact, len(candidates))
	for _, f := range candidates {
		byID[f.ID] = f
	}

	limit := p.TopK
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}

	selected := make(map[string]struct{}, limit)
	out := make([]*models.Fact, 0, limit)
	for _, r := range ranked[:limit] {
		if p.MinScore > 0 && r.Score < p.MinScore {
			continue
		}
		if _, ok := selected[r.ID]; ok {
			continue
		}
		selected[r.ID] = struct{}{}
		out = append(out, byID[r.ID])
	}
	for _, r := range ranked {
		if bm25Only[r.ID] <= bm25OverrideThreshold {
			continue
		}
		if _, ok := selected[r.ID]; ok {
			continue
		}
		selected[r.ID] = struct{}{}
		out = append(out, byID[r.ID])
	}

	now := time.Now()
	for _, f := range out {
		if err := s.touchAndLogRetrieval(ctx, f.ID, now); err != nil {
			return nil, err
		}
		f.LastAccessedAt = now
	}
	return out, nil
}

func (s *Store) touchAndLogRetrieval(ctx context.Context, factID string, at time.Time) error {
	if _, err := s.db.DB().ExecContext(ctx, `UPDATE facts SET last_accessed_at = ? WHERE id = ?`, at, factID); err != nil {
		return fmt.Errorf("factstore: touch last_accessed_at: %w", err)
	}
	return s.logInteraction(ctx, factID, models.InteractionRetrieved)
}

func (s *Store) logInteraction(ctx context.Context, factID string, typ models.InteractionType) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO interactions (id, fact_id, type, created_at) VALUES (?, ?, ?, ?)
	`, uuid.New().String(), factID, string(typ), time.Now())
	if err != nil {
		return fmt.Errorf("factstore: log interaction: %w", err)
	}
	return nil
}

func (s *Store) putDeferredConflict(ctx context.Context, d *models.DeferredConflict) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO deferred_conflicts (id, existing_fact_id, incoming_value, incoming_confidence, incoming_source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.ExistingFactID, d.IncomingValue, d.IncomingConfidence, d.IncomingSourceID, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("factstore: put deferred conflict: %w", err)
	}
	return nil
}

// ForgetAll deletes every fact, summary, pattern, and (via cascade)
// interaction for scope under id — the user id, agent id, or session id
// that owns that scope.
func (s *Store) ForgetAll(ctx context.Context, scope models.FactScope, id string) error {
	db := s.db.DB()
	col := scopeIDColumn(scope)
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM facts WHERE scope = ? AND %s = ?`, col), string(scope), id); err != nil {
		return fmt.Errorf("factstore: forget all (facts): %w", err)
	}
	for _, table := range []string{"summaries", "patterns"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE scope = ? AND scope_id = ?`, table), string(scope), id); err != nil {
			return fmt.Errorf("factstore: forget all (%s): %w", table, err)
		}
	}
	return nil
}

func encodeVec(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := uint32FromFloat32(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}
