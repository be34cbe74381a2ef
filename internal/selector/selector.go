// Package selector implements the engine's central orchestrator: given a
// conversation transcript and the current prompt, it returns the subset of
// messages worth sending to the model, blending lexical and semantic
// relevance, tool-chain grouping, thread awareness, and injected long-term
// memory, under a time-bounded, mostly-parallel pipeline.
//
// Grounded on the reference agent runtime's context-assembly pipeline
// (validate -> group -> score -> assemble), generalized from its flat
// recency-window policy into the full multi-stage algorithm: dynamic
// windowing, FTS pre-filtering, batched embedding, bounded-concurrency
// scoring, multi-query fusion, optional cross-encoder rerank, and memory
// injection.
package selector

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/config"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/factstore"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/ftsfilter"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/queryexpand"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/scorer"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/validator"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// Selector is the entry point described in spec §4.10: Select(messages,
// prompt, ctx) -> filtered messages. It is safe for concurrent use across
// independent sessions; per-session state (the extractor's buffers) lives
// elsewhere.
type Selector struct {
	cfg          config.Config
	db           *store.Store
	embedder     modelclient.Embedder
	facts        *factstore.Store
	expander     *queryexpand.Expander
	crossEncoder CrossEncoder
	scorer       *scorer.Scorer
	cache        *resultCache
}

// New builds a Selector. embedder, facts, expander, and crossEncoder may
// all be nil; each missing dependency degrades its corresponding feature
// rather than erroring (no embedder -> BM25-only scoring, no facts -> no
// memory injection, no expander -> single-query scoring, no crossEncoder
// -> rerank stage skipped).
func New(cfg config.Config, db *store.Store, embedder modelclient.Embedder, facts *factstore.Store, expander *queryexpand.Expander, crossEncoder CrossEncoder) *Selector {
	ttl := time.Duration(cfg.Selection.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Selector{
		cfg:          cfg,
		db:           db,
		embedder:     embedder,
		facts:        facts,
		expander:     expander,
		crossEncoder: crossEncoder,
		scorer:       scorer.New(scorer.Weights{BM25Weight: cfg.Scoring.BM25Weight, CosineWeight: cfg.Scoring.CosineWeight}),
		cache:        newResultCache(512, ttl),
	}
}

// candidate tracks a sanitized message alongside its position in the
// sanitized transcript, which the assembly step uses to preserve original
// ordering in the final output.
type candidate struct {
	index int
	msg    models.Message
}

// Select runs the 14-step selection algorithm against messages for the
// given prompt and turn context, returning the filtered transcript.
func (s *Selector) Select(ctx context.Context, messages []models.Message, prompt string, turn models.TurnContext) ([]models.Message, error) {
	topK := s.cfg.Selection.TopK
	recentN := s.cfg.Selection.RecentN
	minScore := s.cfg.Selection.MinScore
	modelID := turn.ModelID
	if modelID == "" {
		modelID = s.cfg.Selection.ModelID
	}

	// Step 1: cache check.
	if s.cfg.Features.QueryResultCache {
		fp := fingerprint(messages, prompt, s.cfg.Selection.FingerprintWindow, topK, recentN, minScore, modelID)
		if cached, ok := s.cache.get(fp); ok {
			return cached, nil
		}
	}

	// Step 2: dynamic window.
	if s.cfg.Features.DynamicWindow {
		topK = dynamicTopK(s.cfg.Window, modelID, prompt, prompt)
	}

	// Step 3: validation.
	sanitized := validator.Sanitize(messages)
	if len(sanitized) <= topK+recentN {
		return s.finish(sanitized, messages, prompt, topK, recentN, minScore, modelID, nil)
	}

	// Step 4: grouping.
	var groups []group
	if s.cfg.Features.ToolChainGroups {
		groups = groupToolChains(sanitized)
	}

	// Step 5: query construction.
	query := buildQuery(sanitized, prompt, recentN)

	// Step 7: memory prefetch, concurrent with scoring.
	var g errgroup.Group
	var memFacts []*models.Fact
	var queryEmbedding []float32
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, query); err == nil {
			queryEmbedding = vec
		}
	}
	if s.cfg.Memory.Enabled && turn.UserID != "" {
		g.Go(func() error {
			facts, err := prefetchMemory(ctx, s.facts, s.cfg.Memory, turn, query, queryEmbedding)
			memFacts = facts
			return err
		})
	}

	candidates := make([]candidate, len(sanitized))
	for i, m := range sanitized {
		candidates[i] = candidate{index: i, msg: m}
	}

	// Step 6: pre-filter.
	if s.cfg.Features.FTS5Search && s.db != nil {
		candidates = s.preFilter(ctx, candidates, query, topK, recentN)
	}

	// Step 8: batch embedding.
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = candidateText(c.msg)
	}
	embeddings, _ := embedTexts(ctx, s.db, s.embedder, texts)

	// Step 9: scoring.
	kept, scored := s.scoreStep(ctx, candidates, texts, embeddings, query, queryEmbedding, recentN, minScore, len(sanitized))

	// Step 10: multi-query.
	if s.cfg.Features.MultiQuery && s.expander != nil && len(scored) > 0 {
		scoredIndices := make([]int, len(scored))
		scoredTexts := make([]string, len(scored))
		for i, sc := range scored {
			scoredIndices[i] = sc.Index
			scoredTexts[i] = candidateText(candidates[indexFor(candidates, sc.Index)].msg)
		}
		fusionMethod := queryexpand.FusionRRF
		if s.cfg.MultiQuery.Strategy == "round_robin" {
			fusionMethod = queryexpand.FusionRoundRobin
		}
		scored = runMultiQuery(ctx, s.expander, fusionMethod, s.scorer, query, queryEmbedding, scoredIndices, scoredTexts, embeddings, minScore, s.cfg.MultiQuery.Count, s.cfg.Features.ParallelScore, s.cfg.Concurrency.ParallelConcurrency)
	}

	// Step 11: rerank.
	if s.cfg.Features.CrossEncoderRerank && s.crossEncoder != nil {
		textsByIndex := make(map[int]string, len(candidates))
		for _, c := range candidates {
			textsByIndex[c.index] = candidateText(c.msg)
		}
		if reranked, err := rerank(ctx, s.crossEncoder, query, scored, textsByIndex, len(sanitized)); err == nil {
			scored = reranked
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	for _, sc := range scored {
		kept[sc.Index] = true
	}

	// Step 12: assembly.
	final := s.assemble(sanitized, kept, groups, recentN)

	// Step 7 (cont'd) / Step 13: await memory prefetch and inject.
	_ = g.Wait()
	if memMsg := formatMemoryMessage(memFacts); memMsg != nil {
		final = append([]models.Message{*memMsg}, final...)
	}

	return s.finish(final, messages, prompt, topK, recentN, minScore, modelID, nil)
}

// finish applies step 14 (cache store) and returns result.
func (s *Selector) finish(result, original []models.Message, prompt string, topK, recentN int, minScore float64, modelID string, _ error) ([]models.Message, error) {
	if s.cfg.Features.QueryResultCache {
		fp := fingerprint(original, prompt, s.cfg.Selection.FingerprintWindow, topK, recentN, minScore, modelID)
		s.cache.put(fp, result)
	}
	return result, nil
}

func (s *Selector) preFilter(ctx context.Context, candidates []candidate, query string, topK, recentN int) []candidate {
	msgs := make([]models.Message, len(candidates))
	idByID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		msgs[i] = c.msg
		idByID[c.msg.ID] = c.index
	}

	survivors := ftsfilter.Filter(ctx, s.db, msgs, query, topK, recentN)
	if len(survivors) == len(msgs) {
		return candidates // heuristic didn't trigger, or nothing was filtered out
	}

	keep := make(map[int]bool, len(survivors))
	for _, m := range survivors {
		keep[idByID[m.ID]] = true
	}
	// System messages are always retained as scoring candidates regardless
	// of the lexical pre-filter outcome (step 9's always-keep rule).
	for _, c := range candidates {
		if c.msg.Role == models.RoleSystem {
			keep[c.index] = true
		}
	}

	out := make([]candidate, 0, len(keep))
	for _, c := range candidates {
		if keep[c.index] {
			out = append(out, c)
		}
	}
	return out
}

// scoreStep applies the step-9 retention rules, returning the forced-keep
// set and the scored (not forced) candidates considered for top-K
// selection.
func (s *Selector) scoreStep(ctx context.Context, candidates []candidate, texts []string, embeddings map[string][]float32, query string, queryEmbedding []float32, recentN int, minScore float64, sanitizedLen int) (map[int]bool, []scoredCandidate) {
	kept := make(map[int]bool)
	var toScoreIdx []int
	var toScoreTexts []string

	recentCutoff := sanitizedLen - recentN
	for i, c := range candidates {
		switch {
		case c.msg.Role == models.RoleSystem:
			kept[c.index] = true
		case c.index >= recentCutoff:
			kept[c.index] = true
		default:
			toScoreIdx = append(toScoreIdx, c.index)
			toScoreTexts = append(toScoreTexts, texts[i])
		}
	}

	scored := scoreCandidates(ctx, s.scorer, query, queryEmbedding, toScoreIdx, toScoreTexts, embeddings, minScore, s.cfg.Features.ParallelScore, s.cfg.Concurrency.ParallelConcurrency)
	return kept, scored
}

// assemble unions the forced-keep and top-K sets, expands to full groups
// when tool-chain grouping is on, sorts by original index, sanitizes, and
// falls back to the last recentN messages if the result would be empty.
func (s *Selector) assemble(sanitized []models.Message, kept map[int]bool, groups []group, recentN int) []models.Message {
	expanded := expandToGroups(kept, groups)

	indices := make([]int, 0, len(expanded))
	for idx := range expanded {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]models.Message, 0, len(indices))
	for _, idx := range indices {
		out = append(out, sanitized[idx])
	}
	out = validator.Sanitize(out)

	if len(out) == 0 {
		start := len(sanitized) - recentN
		if start < 0 {
			start = 0
		}
		return append([]models.Message(nil), sanitized[start:]...)
	}
	return out
}

// buildQuery concatenates the last recentN user messages with the current
// prompt (step 5).
func buildQuery(messages []models.Message, prompt string, recentN int) string {
	var userTexts []string
	for i := len(messages) - 1; i >= 0 && len(userTexts) < recentN; i-- {
		if messages[i].Role == models.RoleUser {
			userTexts = append([]string{messages[i].Content}, userTexts...)
		}
	}
	userTexts = append(userTexts, prompt)
	return strings.Join(userTexts, "\n")
}

func candidateText(m models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, tr := range m.ToolResults {
		sb.WriteString(tr.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func indexFor(candidates []candidate, originalIndex int) int {
	for i, c := range candidates {
		if c.index == originalIndex {
			return i
		}
	}
	return 0
}
