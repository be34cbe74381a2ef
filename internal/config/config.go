// Package config loads and validates the selection engine's configuration:
// selection window sizing, feature flags, scoring weights, concurrency
// limits, multi-query fusion, tool-result thresholds, and thread
// detection parameters.
//
// Grounded on the reference agent runtime's internal/config package: a
// Load -> applyEnvOverrides -> applyDefaults -> validateConfig pipeline
// over a YAML document with environment-variable expansion, generalized
// from its messaging-platform configuration surface to the selection
// pipeline's own.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the selection engine's full configuration surface.
type Config struct {
	Selection   SelectionConfig   `yaml:"selection"`
	Features    FeatureFlags      `yaml:"features"`
	Memory      MemoryConfig      `yaml:"memory"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Window      WindowConfig      `yaml:"window"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	MultiQuery  MultiQueryConfig  `yaml:"multi_query"`
	ToolResult  ToolResultConfig  `yaml:"tool_result"`
	Thread      ThreadConfig      `yaml:"thread"`
	Profiles    map[string]Profile `yaml:"profiles"`
}

// SelectionConfig controls the selector's baseline behavior.
type SelectionConfig struct {
	TopK              int    `yaml:"top_k"`
	RecentN           int    `yaml:"recent_n"`
	MinScore          float64 `yaml:"min_score"`
	StripOldToolCalls bool   `yaml:"strip_old_tool_calls"`
	ModelID           string `yaml:"model_id"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	FingerprintWindow int    `yaml:"fingerprint_window"`
}

// FeatureFlags toggles optional pipeline stages independently, so a
// deployment can disable any one without touching the others.
type FeatureFlags struct {
	ToolChainGroups    bool `yaml:"tool_chain_groups"`
	BM25Hybrid         bool `yaml:"bm25_hybrid"`
	DynamicWindow      bool `yaml:"dynamic_window"`
	QueryResultCache   bool `yaml:"query_result_cache"`
	BatchEmbed         bool `yaml:"batch_embed"`
	ParallelScore      bool `yaml:"parallel_score"`
	ToolResultIndex    bool `yaml:"tool_result_index"`
	FTS5Search         bool `yaml:"fts5_search"`
	ThreadAware        bool `yaml:"thread_aware"`
	CrossEncoderRerank bool `yaml:"cross_encoder_rerank"`
	MultiQuery         bool `yaml:"multi_query"`
}

// MemoryConfig controls fact/summary/pattern store behavior.
type MemoryConfig struct {
	Enabled               bool    `yaml:"enabled"`
	MinConfidence         float64 `yaml:"min_confidence"`
	RelatednessThreshold  float64 `yaml:"relatedness_threshold"`
	SummaryDedupThreshold float64 `yaml:"summary_dedup_threshold"`
	UserFactCeiling       int     `yaml:"user_fact_ceiling"`
	AgentFactCeiling      int     `yaml:"agent_fact_ceiling"`
}

// ScoringConfig weights the hybrid scorer's lexical and semantic signals;
// BM25Weight and CosineWeight should sum to 1.0.
type ScoringConfig struct {
	BM25Weight   float64 `yaml:"bm25_weight"`
	CosineWeight float64 `yaml:"cosine_weight"`
}

// WindowConfig bounds the dynamic context window.
type WindowConfig struct {
	MinTopK int `yaml:"min_top_k"`
	MaxTopK int `yaml:"max_top_k"`
}

// ConcurrencyConfig bounds parallel fan-out across the pipeline.
type ConcurrencyConfig struct {
	BatchEmbedSize      int `yaml:"batch_embed_size"`
	ParallelConcurrency int `yaml:"parallel_concurrency"`
}

// MultiQueryConfig controls query expansion fan-out and result fusion.
type MultiQueryConfig struct {
	Count    int    `yaml:"count"`
	Fusion   bool   `yaml:"fusion"`
	Strategy string `yaml:"strategy"` // "rrf" or "round_robin"
	RRFK     int    `yaml:"rrf_k"`
}

// ToolResultConfig sets per-tool-kind externalization thresholds, in
// tokens, above which a tool result is stored and replaced with a
// reference token instead of inlined.
type ToolResultConfig struct {
	Thresholds map[string]int `yaml:"thresholds"`
	Default    int            `yaml:"default"`
	ChunkSize  int            `yaml:"chunk_size"`
	ChunkOverlap int          `yaml:"chunk_overlap"`
}

// ThreadConfig tunes topic-shift thread detection.
type ThreadConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxGap              int     `yaml:"max_gap"`
	WindowSize          int     `yaml:"window_size"`
}

// Profile is a named override bundle selectable per model family (e.g. a
// smaller top_k for a narrower-context model).
type Profile struct {
	Selection SelectionConfig `yaml:"selection"`
	Window    WindowConfig    `yaml:"window"`
}

// Load reads, expands, decodes, defaults, and validates a YAML config
// file. Unknown fields are rejected so a typo'd key fails loudly rather
// than silently falling back to a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveProfile merges a named profile over cfg's base selection/window
// settings, returning the merged config unchanged if profile is unknown
// or empty.
func (c *Config) ResolveProfile(name string) Config {
	resolved := *c
	profile, ok := c.Profiles[name]
	if !ok {
		return resolved
	}
	if profile.Selection.TopK != 0 {
		resolved.Selection.TopK = profile.Selection.TopK
	}
	if profile.Selection.RecentN != 0 {
		resolved.Selection.RecentN = profile.Selection.RecentN
	}
	if profile.Selection.MinScore != 0 {
		resolved.Selection.MinScore = profile.Selection.MinScore
	}
	if profile.Selection.ModelID != "" {
		resolved.Selection.ModelID = profile.Selection.ModelID
	}
	if profile.Window.MinTopK != 0 {
		resolved.Window.MinTopK = profile.Window.MinTopK
	}
	if profile.Window.MaxTopK != 0 {
		resolved.Window.MaxTopK = profile.Window.MaxTopK
	}
	return resolved
}
