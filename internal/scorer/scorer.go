// Package scorer ranks candidate documents against a query using a hybrid
// of BM25 (lexical) and cosine similarity (semantic) scores.
//
// Grounded on the reference agent runtime's sqlite-vec cosine similarity
// helper (internal/memory/backend/sqlitevec), generalized with a from-
// scratch BM25 implementation since the teacher has no lexical ranking of
// its own to adapt.
package scorer

import (
	"math"
	"sort"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/tokenizer"
)

// BM25 tuning constants.
const (
	bm25K1        = 1.5
	bm25B         = 0.75
	avgDocLength  = 50.0
)

// Weights controls the blend between lexical and semantic scores. BM25Weight
// and CosineWeight must sum to 1.0.
type Weights struct {
	BM25Weight   float64
	CosineWeight float64
}

// DefaultWeights returns the hybrid scorer's default 0.4/0.6 blend.
func DefaultWeights() Weights {
	return Weights{BM25Weight: 0.4, CosineWeight: 0.6}
}

// Document is a single candidate to be ranked.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
}

// Result is a scored document, descending by Score.
type Result struct {
	ID    string
	Score float64
}

// Scorer ranks documents against a query.
type Scorer struct {
	weights Weights
}

// New builds a Scorer with the given weights, normalizing them to sum to
// 1.0 if they don't already.
func New(weights Weights) *Scorer {
	sum := weights.BM25Weight + weights.CosineWeight
	if sum <= 0 {
		weights = DefaultWeights()
	} else if math.Abs(sum-1.0) > 1e-9 {
		weights.BM25Weight /= sum
		weights.CosineWeight /= sum
	}
	return &Scorer{weights: weights}
}

// Score ranks docs against query and queryEmbedding. When queryEmbedding is
// nil, or a document has no embedding, the hybrid falls back to the BM25
// component alone, rescaled to 0.8 per the no-embedding single-signal rule.
func (s *Scorer) Score(query string, queryEmbedding []float32, docs []Document) []Result {
	idf := computeIDF(docs)
	queryTerms := tokenizer.Tokenize(query)

	results := make([]Result, len(docs))
	for i, d := range docs {
		bm25 := bm25Score(queryTerms, d.Text, idf)
		var total float64
		if queryEmbedding != nil && len(d.Embedding) > 0 {
			cos := float64(CosineSimilarity(queryEmbedding, d.Embedding))
			total = s.weights.CosineWeight*cos + s.weights.BM25Weight*bm25
		} else {
			total = 0.8 * bm25
		}
		results[i] = Result{ID: d.ID, Score: total}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// BM25Only returns each doc's normalized lexical score alone (no cosine
// blend), keyed by ID. Used by callers that need to override a minScore
// cutoff for a candidate that is a strong lexical match even when its
// hybrid score is weak.
func (s *Scorer) BM25Only(query string, docs []Document) map[string]float64 {
	idf := computeIDF(docs)
	queryTerms := tokenizer.Tokenize(query)
	out := make(map[string]float64, len(docs))
	for _, d := range docs {
		out[d.ID] = bm25Score(queryTerms, d.Text, idf)
	}
	return out
}

// computeIDF precomputes inverse document frequency for every term across
// the corpus, the classic BM25 idf: ln((N - df + 0.5)/(df + 0.5) + 1).
func computeIDF(docs []Document) map[string]float64 {
	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]struct{})
		for _, t := range tokenizer.Tokenize(d.Text) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log((n-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}
	return idf
}

// bm25Score computes the classic BM25 sum and normalizes it into [0,1] by
// dividing by 10 and clamping, so the lexical signal can't dominate a
// cosine score (itself bounded to [0,1]) in the hybrid blend.
func bm25Score(queryTerms []string, docText string, idf map[string]float64) float64 {
	tf := tokenizer.TermFrequency(docText)
	docLen := float64(len(tokenizer.Tokenize(docText)))
	if docLen == 0 {
		return 0
	}

	var score float64
	for _, term := range queryTerms {
		freq, ok := tf[term]
		if !ok {
			continue
		}
		f := float64(freq)
		numerator := f * (bm25K1 + 1)
		denominator := f + bm25K1*(1-bm25B+bm25B*(docLen/avgDocLength))
		score += idf[term] * (numerator / denominator)
	}

	score /= 10
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, returning 0 for mismatched or empty inputs.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
