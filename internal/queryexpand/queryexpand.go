// Package queryexpand generates alternative phrasings of a query so the
// scorer can retrieve candidates a single literal query would miss. It
// supports a deterministic rule-based strategy, an LLM-based strategy, and
// an "auto" mode that prefers the LLM when a generator is available.
//
// Results are cached by query+strategy+count in a small LRU with a TTL,
// since expansion is called once per turn but often repeats across turns
// of the same session.
package queryexpand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/tokenizer"
)

// Strategy selects how alternatives are generated.
type Strategy string

const (
	StrategyRule Strategy = "rule"
	StrategyLLM  Strategy = "llm"
	StrategyAuto Strategy = "auto"
)

// FusionMethod selects how ranked lists from multiple query variants are
// combined into one.
type FusionMethod string

const (
	FusionRRF        FusionMethod = "rrf"
	FusionRoundRobin FusionMethod = "round_robin"
)

const (
	// DefaultRRFK is the Reciprocal Rank Fusion damping constant.
	DefaultRRFK = 60

	defaultCacheSize = 100
	defaultCacheTTL  = 5 * time.Minute
)

// technical synonym table used by the rule-based strategy. Deliberately
// small: this is a bias toward precision, not an attempt at a thesaurus.
var synonyms = map[string][]string{
	"error":    {"exception", "failure", "bug"},
	"bug":      {"error", "defect", "issue"},
	"fix":      {"resolve", "patch", "repair"},
	"function": {"method", "procedure", "routine"},
	"variable": {"var", "field"},
	"config":   {"configuration", "settings"},
	"delete":   {"remove", "drop"},
	"create":   {"add", "new", "make"},
	"update":   {"modify", "change", "edit"},
	"test":     {"spec", "check"},
	"slow":     {"latency", "performance"},
	"crash":    {"panic", "fault"},
}

var questionWordSimplify = map[string]string{
	"how do i":   "",
	"how can i":  "",
	"what is":    "",
	"what are":   "",
	"why does":   "",
	"why is":     "",
	"can you":    "",
	"could you":  "",
	"would you":  "",
}

// Expander produces query variants and fuses ranked result lists across
// them.
type Expander struct {
	generator modelclient.Generator
	strategy  Strategy
	rrfK      int

	mu    sync.Mutex
	cache *lruCache
}

// Config controls an Expander's behavior.
type Config struct {
	Strategy Strategy
	RRFK     int
	CacheTTL time.Duration
	CacheCap int
}

// DefaultConfig returns the spec defaults: auto strategy, RRF k=60, a
// 100-entry 5-minute cache.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyAuto,
		RRFK:     DefaultRRFK,
		CacheTTL: defaultCacheTTL,
		CacheCap: defaultCacheSize,
	}
}

// New constructs an Expander. generator may be nil; in that case "auto"
// and "llm" strategies both fall back to rule-based expansion.
func New(generator modelclient.Generator, cfg Config) *Expander {
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheCap <= 0 {
		cfg.CacheCap = defaultCacheSize
	}
	return &Expander{
		generator: generator,
		strategy:  cfg.Strategy,
		rrfK:      cfg.RRFK,
		cache:     newLRUCache(cfg.CacheCap, cfg.CacheTTL),
	}
}

// Expand returns up to count+1 query variants (the original query first),
// deduplicated, using the configured strategy. count is the number of
// alternatives requested beyond the original.
func (e *Expander) Expand(ctx context.Context, query string, count int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return []string{query}, nil
	}

	effective := e.resolveStrategy()
	key := fmt.Sprintf("%s|%s|%d", effective, query, count)

	e.mu.Lock()
	if cached, ok := e.cache.get(key); ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	var variants []string
	var err error
	switch effective {
	case StrategyLLM:
		variants, err = e.expandLLM(ctx, query, count)
	default:
		variants = e.expandRule(query, count)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache.put(key, variants)
	e.mu.Unlock()
	return variants, nil
}

func (e *Expander) resolveStrategy() Strategy {
	switch e.strategy {
	case StrategyLLM:
		return StrategyLLM
	case StrategyRule:
		return StrategyRule
	default: // auto
		if e.generator != nil {
			return StrategyLLM
		}
		return StrategyRule
	}
}

// expandRule deterministically derives up to count alternatives: a
// simplified form with question words stripped, a synonym-substituted
// form, and a keyword-only form. The original query is always first.
func (e *Expander) expandRule(query string, count int) []string {
	variants := []string{query}
	seen := map[string]bool{normalizeForDedup(query): true}

	add := func(v string) bool {
		v = strings.TrimSpace(v)
		if v == "" {
			return false
		}
		norm := normalizeForDedup(v)
		if seen[norm] {
			return false
		}
		seen[norm] = true
		variants = append(variants, v)
		return len(variants) > count
	}

	if add(simplifyQuestion(query)) {
		return variants[:count+1]
	}
	if add(substituteSynonyms(query)) {
		return variants[:count+1]
	}
	if add(extractKeyTerms(query)) {
		return variants[:count+1]
	}

	if len(variants) > count+1 {
		variants = variants[:count+1]
	}
	return variants
}

func simplifyQuestion(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	for prefix, replacement := range questionWordSimplify {
		if strings.HasPrefix(lower, prefix) {
			rest := strings.TrimSpace(query[len(prefix):])
			if replacement != "" {
				return replacement + " " + rest
			}
			return rest
		}
	}
	return ""
}

func substituteSynonyms(query string) string {
	words := strings.Fields(query)
	changed := false
	for i, w := range words {
		lower := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if alts, ok := synonyms[lower]; ok && len(alts) > 0 {
			words[i] = alts[0]
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(words, " ")
}

func extractKeyTerms(query string) string {
	terms := tokenizer.TokenizeKeywords(query)
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " ")
}

// expandLLM asks the generator for up to count alternative phrasings and
// falls back to the rule-based strategy if the call fails.
func (e *Expander) expandLLM(ctx context.Context, query string, count int) ([]string, error) {
	if e.generator == nil {
		return e.expandRule(query, count), nil
	}

	prompt := fmt.Sprintf(
		"Generate %d alternative phrasings of the following search query. "+
			"Return one per line, no numbering or bullets, no commentary.\n\nQuery: %s",
		count, query,
	)
	raw, err := e.generator.Generate(ctx, modelclient.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return e.expandRule(query, count), nil
	}

	variants := []string{query}
	seen := map[string]bool{normalizeForDedup(query): true}
	for _, line := range strings.Split(raw, "\n") {
		clean := stripListMarker(line)
		if clean == "" {
			continue
		}
		norm := normalizeForDedup(clean)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		variants = append(variants, clean)
		if len(variants) > count {
			break
		}
	}
	return variants, nil
}

func stripListMarker(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•")
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == ')' {
			prefix := s[:i]
			if isOrdinalMarker(prefix) {
				s = strings.TrimSpace(s[i+1:])
			}
			break
		}
		if r < '0' || r > '9' {
			break
		}
	}
	return s
}

func isOrdinalMarker(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeForDedup(s string) string {
	return strings.Join(tokenizer.Tokenize(s), " ")
}

// Scored is a single fusion input: a document id ranked within one query
// variant's result list.
type Scored struct {
	ID    string
	Score float64
}

// Fuse combines per-variant ranked lists into a single ranked list using
// the configured method.
func (e *Expander) Fuse(method FusionMethod, lists [][]Scored) []Scored {
	switch method {
	case FusionRoundRobin:
		return fuseRoundRobin(lists)
	default:
		return fuseRRF(lists, e.rrfK)
	}
}

// fuseRRF implements Reciprocal Rank Fusion: score(d) = Σ 1/(k + rank(d)),
// rank is 1-indexed within each list.
func fuseRRF(lists [][]Scored, k int) []Scored {
	totals := make(map[string]float64)
	order := make([]string, 0)
	for _, list := range lists {
		for rank, item := range list {
			if _, seen := totals[item.ID]; !seen {
				order = append(order, item.ID)
			}
			totals[item.ID] += 1.0 / float64(k+rank+1)
		}
	}
	result := make([]Scored, 0, len(order))
	for _, id := range order {
		result = append(result, Scored{ID: id, Score: totals[id]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return result
}

// fuseRoundRobin interleaves each list's entries in rank order,
// deduplicating by id on first occurrence.
func fuseRoundRobin(lists [][]Scored) []Scored {
	seen := make(map[string]bool)
	var result []Scored
	maxLen := 0
	for _, list := range lists {
		if len(list) > maxLen {
			maxLen = len(list)
		}
	}
	for rank := 0; rank < maxLen; rank++ {
		for _, list := range lists {
			if rank >= len(list) {
				continue
			}
			item := list[rank]
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			result = append(result, item)
		}
	}
	return result
}
