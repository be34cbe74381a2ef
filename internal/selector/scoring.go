package selector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/concurrency"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/queryexpand"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/scorer"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
)

// defaultParallelWidth is the scorer's default bounded-concurrency width.
const defaultParallelWidth = 10

// crossEncoderMinHistory and crossEncoderTopN are the rerank stage's
// defaults: rerank only kicks in once the candidate pool is large enough
// to be worth the extra model call, and only the leading slice of it is
// reranked.
const (
	crossEncoderMinHistory = 50
	crossEncoderTopN       = 100
)

// CrossEncoder scores a batch of documents against a query more precisely
// than the bi-encoder cosine/BM25 blend, at higher per-call cost. A nil
// CrossEncoder disables the optional rerank stage.
type CrossEncoder interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// embedTexts batch-embeds every unique text not already present in the
// embedding cache, populating the cache with newly computed vectors, and
// returns a text -> vector map covering every input.
func embedTexts(ctx context.Context, db *store.Store, embedder modelclient.Embedder, texts []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(texts))
	if embedder == nil {
		return out, nil
	}

	unique := make([]string, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	for _, t := range texts {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}

	var toEmbed []string
	for _, t := range unique {
		key := embeddingCacheKey(t)
		if vec, ok, err := db.GetEmbedding(ctx, key); err == nil && ok {
			out[t] = vec
		} else {
			toEmbed = append(toEmbed, t)
		}
	}
	if len(toEmbed) == 0 {
		return out, nil
	}

	vecs, err := embedder.EmbedBatch(ctx, toEmbed)
	if err != nil {
		return out, err
	}
	for i, t := range toEmbed {
		if i >= len(vecs) {
			break
		}
		out[t] = vecs[i]
		_ = db.PutEmbedding(ctx, embeddingCacheKey(t), vecs[i])
	}
	return out, nil
}

func embeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// scoredCandidate pairs an original message index with its relevance
// score.
type scoredCandidate struct {
	Index int
	Score float64
}

// scoreOne computes a single candidate's hybrid score.
func scoreOne(sc *scorer.Scorer, query string, queryEmbedding []float32, text string, embedding []float32) float64 {
	results := sc.Score(query, queryEmbedding, []scorer.Document{{ID: "x", Text: text, Embedding: embedding}})
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}

// scoreCandidates scores every (index, text) pair against query, optionally
// in parallel under a bounded-width semaphore, and returns only those
// scoring at or above minScore.
func scoreCandidates(ctx context.Context, sc *scorer.Scorer, query string, queryEmbedding []float32, indices []int, texts []string, embeddings map[string][]float32, minScore float64, parallel bool, width int) []scoredCandidate {
	if width <= 0 {
		width = defaultParallelWidth
	}

	out := make([]scoredCandidate, len(indices))
	if !parallel {
		for i := range indices {
			out[i] = scoredCandidate{Index: indices[i], Score: scoreOne(sc, query, queryEmbedding, texts[i], embeddings[texts[i]])}
		}
	} else {
		sem := concurrency.NewSemaphore(width)
		var wg sync.WaitGroup
		for i := range indices {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = sem.Do(ctx, func() error {
					out[i] = scoredCandidate{Index: indices[i], Score: scoreOne(sc, query, queryEmbedding, texts[i], embeddings[texts[i]])}
					return nil
				})
			}(i)
		}
		wg.Wait()
	}

	kept := make([]scoredCandidate, 0, len(out))
	for _, c := range out {
		if c.Score >= minScore {
			kept = append(kept, c)
		}
	}
	return kept
}

// runMultiQuery scores candidates once per query variant (the original
// plus expander.Expand's alternatives) and fuses the per-variant ranked
// lists via the expander's configured fusion method.
func runMultiQuery(ctx context.Context, expander *queryexpand.Expander, method queryexpand.FusionMethod, sc *scorer.Scorer, query string, queryEmbedding []float32, indices []int, texts []string, embeddings map[string][]float32, minScore float64, count int, parallel bool, width int) []scoredCandidate {
	variants, err := expander.Expand(ctx, query, count)
	if err != nil || len(variants) == 0 {
		variants = []string{query}
	}

	lists := make([][]queryexpand.Scored, 0, len(variants))
	byIndex := make(map[string]int, len(indices))
	for _, variant := range variants {
		ranked := scoreCandidates(ctx, sc, variant, queryEmbedding, indices, texts, embeddings, minScore, parallel, width)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

		list := make([]queryexpand.Scored, 0, len(ranked))
		for _, r := range ranked {
			id := indexKey(r.Index)
			byIndex[id] = r.Index
			list = append(list, queryexpand.Scored{ID: id, Score: r.Score})
		}
		lists = append(lists, list)
	}

	fused := expander.Fuse(method, lists)
	out := make([]scoredCandidate, 0, len(fused))
	for _, f := range fused {
		out = append(out, scoredCandidate{Index: byIndex[f.ID], Score: f.Score})
	}
	return out
}

func indexKey(i int) string {
	return "idx:" + hex.EncodeToString([]byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)})
}

// rerank replaces the leading crossEncoderTopN candidates' scores with
// cross-encoder scores, when historySize meets crossEncoderMinHistory.
func rerank(ctx context.Context, ce CrossEncoder, query string, candidates []scoredCandidate, texts map[int]string, historySize int) ([]scoredCandidate, error) {
	if ce == nil || historySize < crossEncoderMinHistory || len(candidates) == 0 {
		return candidates, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	n := len(candidates)
	if n > crossEncoderTopN {
		n = crossEncoderTopN
	}
	head := candidates[:n]
	tail := candidates[n:]

	docs := make([]string, len(head))
	for i, c := range head {
		docs[i] = texts[c.Index]
	}
	scores, err := ce.Score(ctx, query, docs)
	if err != nil {
		return candidates, err
	}
	for i := range head {
		if i < len(scores) {
			head[i].Score = scores[i]
		}
	}
	sort.SliceStable(head, func(i, j int) bool { return head[i].Score > head[j].Score })
	return append(head, tail...), nil
}
