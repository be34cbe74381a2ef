package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/config"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/factstore"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// defaultMemoryRetrievalCap bounds how many facts prefetchMemory injects
// into a single turn, independent of mem.UserFactCeiling (which bounds how
// many facts the store retains, not how many a turn surfaces).
const defaultMemoryRetrievalCap = 10

// prefetchMemory retrieves the top-ranked facts visible to turn against
// query, meant to run concurrently with scoring (step 7). A nil facts
// store or empty UserID yields no facts and no error.
func prefetchMemory(ctx context.Context, facts *factstore.Store, mem config.MemoryConfig, turn models.TurnContext, query string, queryEmbedding []float32) ([]*models.Fact, error) {
	if facts == nil || !mem.Enabled || turn.UserID == "" {
		return nil, nil
	}
	maxFacts := mem.UserFactCeiling
	if maxFacts <= 0 || maxFacts > defaultMemoryRetrievalCap {
		maxFacts = defaultMemoryRetrievalCap
	}
	return facts.Retrieve(ctx, factstore.RetrieveParams{
		UserID:         turn.UserID,
		AgentID:        turn.AgentID,
		SessionID:      turn.SessionID,
		Query:          query,
		QueryEmbedding: queryEmbedding,
		TopK:           maxFacts,
	})
}

// formatMemoryMessage groups facts by category and renders them as a
// single synthetic system message, placed at the head of the final
// selection per the memory-injection-first ordering guarantee.
func formatMemoryMessage(facts []*models.Fact) *models.Message {
	if len(facts) == 0 {
		return nil
	}

	byCategory := make(map[models.FactCategory][]*models.Fact)
	var order []models.FactCategory
	for _, f := range facts {
		if _, ok := byCategory[f.Category]; !ok {
			order = append(order, f.Category)
		}
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}

	var sb strings.Builder
	sb.WriteString("Known context about this user:\n")
	for _, cat := range order {
		fmt.Fprintf(&sb, "\n%s:\n", strings.ToUpper(string(cat)))
		for _, f := range byCategory[cat] {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Key, f.Value)
		}
	}

	return &models.Message{
		Role:    models.RoleSystem,
		Content: sb.String(),
	}
}
