package factstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows so scanFact serves both a
// single-row lookup and a multi-row iteration.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*models.Fact, error) {
	var f models.Fact
	var scope, category string
	var agentID, sessionID, sourceID sql.NullString
	var embeddingBlob []byte
	var metaJSON string

	err := row.Scan(&f.ID, &scope, &f.UserID, &agentID, &sessionID, &category, &f.Key, &f.Value, &f.Confidence,
		&sourceID, &embeddingBlob, &metaJSON, &f.CreatedAt, &f.UpdatedAt, &f.LastAccessedAt)
	if err != nil {
		return nil, err
	}

	f.Scope = models.FactScope(scope)
	f.Category = models.FactCategory(category)
	f.AgentID = agentID.String
	f.SessionID = sessionID.String
	f.SourceID = sourceID.String
	f.Embedding = decodeVec(embeddingBlob)
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &f.Metadata); err != nil {
			return nil, fmt.Errorf("factstore: unmarshal metadata: %w", err)
		}
	}
	return &f, nil
}

func decodeVec(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

func uint32FromFloat32(f float32) uint32 {
	return math.Float32bits(f)
}
