package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "context.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `selection:
  top_k: 15
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Selection.TopK != 15 {
		t.Errorf("TopK = %d, want 15", cfg.Selection.TopK)
	}
	if cfg.Window.MinTopK != 5 || cfg.Window.MaxTopK != 50 {
		t.Errorf("Window = %+v, want defaults 5/50", cfg.Window)
	}
	if cfg.Scoring.BM25Weight != 0.4 || cfg.Scoring.CosineWeight != 0.6 {
		t.Errorf("Scoring = %+v, want default 0.4/0.6", cfg.Scoring)
	}
	if cfg.MultiQuery.RRFK != 60 {
		t.Errorf("RRFK = %d, want 60", cfg.MultiQuery.RRFK)
	}
	if cfg.ToolResult.Thresholds["browser"] != 500 {
		t.Errorf("browser threshold = %d, want 500", cfg.ToolResult.Thresholds["browser"])
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `selection:
  bogus_field: true
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() with unknown field should error")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_MODEL_ID", "kimi-k2")
	path := writeConfig(t, `selection:
  model_id: "${TEST_MODEL_ID}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Selection.ModelID != "kimi-k2" {
		t.Errorf("ModelID = %q, want kimi-k2", cfg.Selection.ModelID)
	}
}

func TestLoad_RejectsInvalidScoringWeights(t *testing.T) {
	path := writeConfig(t, `scoring:
  bm25_weight: 0.5
  cosine_weight: 0.9
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for weights not summing to 1.0")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Errorf("error = %v, want mention of weights summing to 1.0", err)
	}
}

func TestLoad_RejectsWindowMaxBelowMin(t *testing.T) {
	path := writeConfig(t, `window:
  min_top_k: 30
  max_top_k: 10
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error when max_top_k < min_top_k")
	}
}

func TestLoad_RejectsUnknownMultiQueryStrategy(t *testing.T) {
	path := writeConfig(t, `multi_query:
  strategy: bogus
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for unknown multi_query.strategy")
	}
}

func TestResolveProfile_OverridesSelectionAndWindow(t *testing.T) {
	path := writeConfig(t, `selection:
  top_k: 20
profiles:
  narrow:
    selection:
      top_k: 8
    window:
      max_top_k: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	resolved := cfg.ResolveProfile("narrow")
	if resolved.Selection.TopK != 8 {
		t.Errorf("resolved TopK = %d, want 8", resolved.Selection.TopK)
	}
	if resolved.Window.MaxTopK != 20 {
		t.Errorf("resolved MaxTopK = %d, want 20", resolved.Window.MaxTopK)
	}
}

func TestResolveProfile_UnknownNameIsNoop(t *testing.T) {
	path := writeConfig(t, `selection:
  top_k: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	resolved := cfg.ResolveProfile("does-not-exist")
	if resolved.Selection.TopK != 20 {
		t.Errorf("resolved TopK = %d, want unchanged 20", resolved.Selection.TopK)
	}
}
