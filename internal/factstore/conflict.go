package factstore

import "github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"

// resolveConflict applies strategy to an existing fact and an incoming one
// sharing the same user+scope+key. It returns the fact that should be
// written in existing's place, or — for ask_user — the existing fact
// unchanged plus a DeferredConflict capturing the incoming content without
// mutating the live row.
func resolveConflict(existing, incoming *models.Fact, strategy models.ConflictStrategy) (*models.Fact, *models.DeferredConflict) {
	switch strategy {
	case models.ConflictKeepHighestConfidence:
		if existing.Confidence >= incoming.Confidence {
			return carryIdentity(existing, incoming), nil
		}
		return carryIdentity(incoming, existing), nil

	case models.ConflictMerge:
		merged := *existing
		merged.Value = existing.Value + "; " + incoming.Value
		merged.Confidence = maxConfidence(existing.Confidence, incoming.Confidence)
		merged.SourceID = joinSources(existing.SourceID, incoming.SourceID)
		merged.Embedding = incoming.Embedding
		return &merged, nil

	case models.ConflictAskUser:
		return existing, &models.DeferredConflict{
			ExistingFactID:     existing.ID,
			IncomingValue:      incoming.Value,
			IncomingConfidence: incoming.Confidence,
			IncomingSourceID:   incoming.SourceID,
		}

	case models.ConflictKeepLatest:
		fallthrough
	default:
		merged := *incoming
		merged.ID = existing.ID
		merged.CreatedAt = existing.CreatedAt
		return &merged, nil
	}
}

// carryIdentity returns winner's data under loser's stable identity (ID,
// CreatedAt) so a PutFact upsert replaces the existing row in place.
func carryIdentity(winner, loser *models.Fact) *models.Fact {
	result := *winner
	if winner.ID != loser.ID {
		result.ID = loser.ID
		result.CreatedAt = loser.CreatedAt
	}
	return &result
}

func maxConfidence(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// joinSources records both contributing source ids, deduplicating the
// trivial case where only one is set.
func joinSources(existing, incoming string) string {
	switch {
	case existing == "":
		return incoming
	case incoming == "" || existing == incoming:
		return existing
	default:
		return existing + "," + incoming
	}
}
