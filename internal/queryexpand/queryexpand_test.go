package queryexpand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Generate(ctx context.Context, req modelclient.CompletionRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestExpand_EmptyQueryReturnsItself(t *testing.T) {
	e := New(nil, DefaultConfig())
	variants, err := e.Expand(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(variants) != 1 || variants[0] != "" {
		t.Errorf("variants = %v, want [\"\"]", variants)
	}
}

func TestExpand_RuleStrategyAlwaysIncludesOriginalFirst(t *testing.T) {
	e := New(nil, Config{Strategy: StrategyRule})
	variants, err := e.Expand(context.Background(), "how do I fix this bug", 3)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(variants) == 0 || variants[0] != "how do I fix this bug" {
		t.Fatalf("variants[0] = %q, want original query first", variants[0])
	}
}

func TestExpand_RuleStrategySimplifiesQuestionWords(t *testing.T) {
	e := New(nil, Config{Strategy: StrategyRule})
	variants, err := e.Expand(context.Background(), "how do I configure caching", 3)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	found := false
	for _, v := range variants[1:] {
		if v == "configure caching" {
			found = true
		}
	}
	if !found {
		t.Errorf("variants = %v, want a simplified variant without the question prefix", variants)
	}
}

func TestExpand_AutoUsesLLMWhenGeneratorPresent(t *testing.T) {
	gen := &stubGenerator{response: "alt one\nalt two"}
	e := New(gen, DefaultConfig())
	_, err := e.Expand(context.Background(), "original query", 2)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestExpand_AutoFallsBackToRuleWithoutGenerator(t *testing.T) {
	e := New(nil, DefaultConfig())
	variants, err := e.Expand(context.Background(), "how do I fix this bug", 2)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(variants) < 1 {
		t.Fatal("expected at least the original query")
	}
}

func TestExpand_LLMFailureFallsBackToRule(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	e := New(gen, Config{Strategy: StrategyLLM})
	variants, err := e.Expand(context.Background(), "fix the bug", 2)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if variants[0] != "fix the bug" {
		t.Errorf("variants[0] = %q, want original query", variants[0])
	}
}

func TestExpand_StripsNumberingAndBullets(t *testing.T) {
	gen := &stubGenerator{response: "1. first alternative\n- second alternative\n* third alternative"}
	e := New(gen, Config{Strategy: StrategyLLM})
	variants, err := e.Expand(context.Background(), "original", 3)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	for _, v := range variants {
		if v == "1. first alternative" || v == "- second alternative" {
			t.Errorf("variant %q was not stripped of its marker", v)
		}
	}
}

func TestExpand_DedupesAgainstOriginal(t *testing.T) {
	gen := &stubGenerator{response: "Original\noriginal\nreally new one"}
	e := New(gen, Config{Strategy: StrategyLLM})
	variants, err := e.Expand(context.Background(), "original", 3)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	count := 0
	for _, v := range variants {
		if normalizeForDedup(v) == normalizeForDedup("original") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("found %d occurrences of the original query's normalized form, want 1", count)
	}
}

func TestExpand_CachesResultsAcrossCalls(t *testing.T) {
	gen := &stubGenerator{response: "alt one"}
	e := New(gen, DefaultConfig())
	ctx := context.Background()
	if _, err := e.Expand(ctx, "repeat query", 1); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if _, err := e.Expand(ctx, "repeat query", 1); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1 (second call should hit cache)", gen.calls)
	}
}

func TestFuse_RRFRanksItemsAppearingInMultipleLists(t *testing.T) {
	e := New(nil, DefaultConfig())
	lists := [][]Scored{
		{{ID: "a", Score: 1}, {ID: "b", Score: 0.9}, {ID: "c", Score: 0.8}},
		{{ID: "b", Score: 1}, {ID: "a", Score: 0.9}},
	}
	fused := e.Fuse(FusionRRF, lists)
	if len(fused) != 3 {
		t.Fatalf("len(fused) = %d, want 3", len(fused))
	}
	if fused[0].ID != "a" && fused[0].ID != "b" {
		t.Errorf("fused[0].ID = %q, want a or b (both appear in both lists)", fused[0].ID)
	}
	if fused[len(fused)-1].ID != "c" {
		t.Errorf("fused[last].ID = %q, want c (only appears once)", fused[len(fused)-1].ID)
	}
}

func TestFuse_RoundRobinInterleavesAndDedupes(t *testing.T) {
	e := New(nil, DefaultConfig())
	lists := [][]Scored{
		{{ID: "a"}, {ID: "b"}},
		{{ID: "b"}, {ID: "c"}},
	}
	fused := e.Fuse(FusionRoundRobin, lists)
	if len(fused) != 3 {
		t.Fatalf("len(fused) = %d, want 3 (b deduplicated)", len(fused))
	}
	if fused[0].ID != "a" {
		t.Errorf("fused[0].ID = %q, want a", fused[0].ID)
	}
}

func TestLRUCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newLRUCache(2, time.Minute)
	c.put("a", []string{"a"})
	c.put("b", []string{"b"})
	c.put("c", []string{"c"})
	if _, ok := c.get("a"); ok {
		t.Error("expected \"a\" to be evicted")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("expected \"c\" to still be present")
	}
}

func TestLRUCache_ExpiresEntriesPastTTL(t *testing.T) {
	c := newLRUCache(10, time.Minute)
	fixed := time.Now()
	c.now = func() time.Time { return fixed }
	c.put("a", []string{"a"})
	c.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	if _, ok := c.get("a"); ok {
		t.Error("expected entry to be expired")
	}
}
