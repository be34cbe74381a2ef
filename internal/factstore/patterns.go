package factstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// MaxPatternConfidence caps the confidence derived from reinforcement
// count; a pattern reinforced indefinitely never reads as a certainty.
const MaxPatternConfidence = 0.95

// patternConfidenceIncrement is added per reinforcement on top of a 0.5
// base confidence for a freshly observed pattern.
const patternConfidenceIncrement = 0.1

// PatternConfidence derives a pattern's confidence from how many times it
// has been observed: 0.5 base, +0.1 per additional occurrence, capped at
// MaxPatternConfidence.
func PatternConfidence(occurrences int) float32 {
	if occurrences <= 1 {
		return 0.5
	}
	conf := 0.5 + float32(occurrences-1)*patternConfidenceIncrement
	if conf > MaxPatternConfidence {
		conf = MaxPatternConfidence
	}
	return conf
}

// Reinforce increments a pattern's occurrence count and appends factID if
// not already tracked, creating the pattern if it does not yet exist.
func (s *Store) Reinforce(ctx context.Context, scope models.FactScope, scopeID, description, factID string) (*models.Pattern, error) {
	existing, err := s.findPattern(ctx, scope, scopeID, description)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if existing == nil {
		p := &models.Pattern{
			ID:          uuid.New().String(),
			Scope:       scope,
			ScopeID:     scopeID,
			Description: description,
			Occurrences: 1,
			FactIDs:     []string{factID},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return p, s.upsertPattern(ctx, p)
	}

	existing.Occurrences++
	existing.UpdatedAt = now
	hasFact := false
	for _, id := range existing.FactIDs {
		if id == factID {
			hasFact = true
			break
		}
	}
	if !hasFact && factID != "" {
		existing.FactIDs = append(existing.FactIDs, factID)
	}
	return existing, s.upsertPattern(ctx, existing)
}

func (s *Store) findPattern(ctx context.Context, scope models.FactScope, scopeID, description string) (*models.Pattern, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, scope, scope_id, description, occurrences, fact_ids, created_at, updated_at
		FROM patterns WHERE scope = ? AND scope_id = ? AND description = ?
	`, string(scope), scopeID, description)
	p, err := scanPattern(row)
	if err != nil {
		return nil, nil
	}
	return p, nil
}

func (s *Store) upsertPattern(ctx context.Context, p *models.Pattern) error {
	factIDs, err := json.Marshal(p.FactIDs)
	if err != nil {
		return fmt.Errorf("factstore: marshal fact ids: %w", err)
	}
	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO patterns (id, scope, scope_id, description, occurrences, fact_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET occurrences = excluded.occurrences, fact_ids = excluded.fact_ids, updated_at = excluded.updated_at
	`, p.ID, string(p.Scope), p.ScopeID, p.Description, p.Occurrences, string(factIDs), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("factstore: upsert pattern: %w", err)
	}
	return nil
}

// ListPatterns returns every pattern tracked for a scope.
func (s *Store) ListPatterns(ctx context.Context, scope models.FactScope, scopeID string) ([]*models.Pattern, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, scope, scope_id, description, occurrences, fact_ids, created_at, updated_at
		FROM patterns WHERE scope = ? AND scope_id = ?
	`, string(scope), scopeID)
	if err != nil {
		return nil, fmt.Errorf("factstore: list patterns: %w", err)
	}
	defer rows.Close()

	var out []*models.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPattern(row rowScanner) (*models.Pattern, error) {
	var p models.Pattern
	var scope string
	var factIDsJSON string
	if err := row.Scan(&p.ID, &scope, &p.ScopeID, &p.Description, &p.Occurrences, &factIDsJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Scope = models.FactScope(scope)
	if factIDsJSON != "" {
		if err := json.Unmarshal([]byte(factIDsJSON), &p.FactIDs); err != nil {
			return nil, fmt.Errorf("factstore: unmarshal fact ids: %w", err)
		}
	}
	return &p, nil
}
