package config

import "os"

func applyDefaults(cfg *Config) {
	applySelectionDefaults(&cfg.Selection)
	applyMemoryDefaults(&cfg.Memory)
	applyScoringDefaults(&cfg.Scoring)
	applyWindowDefaults(&cfg.Window)
	applyConcurrencyDefaults(&cfg.Concurrency)
	applyMultiQueryDefaults(&cfg.MultiQuery)
	applyToolResultDefaults(&cfg.ToolResult)
	applyThreadDefaults(&cfg.Thread)
}

func applySelectionDefaults(cfg *SelectionConfig) {
	if cfg.TopK == 0 {
		cfg.TopK = 20
	}
	if cfg.RecentN == 0 {
		cfg.RecentN = 5
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.1
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "claude-sonnet-4"
	}
	if cfg.CacheTTLSeconds == 0 {
		cfg.CacheTTLSeconds = 60
	}
	if cfg.FingerprintWindow == 0 {
		cfg.FingerprintWindow = 20
	}
}

func applyMemoryDefaults(cfg *MemoryConfig) {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.7
	}
	if cfg.RelatednessThreshold == 0 {
		cfg.RelatednessThreshold = 0.8
	}
	if cfg.SummaryDedupThreshold == 0 {
		cfg.SummaryDedupThreshold = 0.85
	}
	if cfg.UserFactCeiling == 0 {
		cfg.UserFactCeiling = 1000
	}
	if cfg.AgentFactCeiling == 0 {
		cfg.AgentFactCeiling = 500
	}
}

func applyScoringDefaults(cfg *ScoringConfig) {
	if cfg.BM25Weight == 0 && cfg.CosineWeight == 0 {
		cfg.BM25Weight = 0.4
		cfg.CosineWeight = 0.6
	}
}

func applyWindowDefaults(cfg *WindowConfig) {
	if cfg.MinTopK == 0 {
		cfg.MinTopK = 5
	}
	if cfg.MaxTopK == 0 {
		cfg.MaxTopK = 50
	}
}

func applyConcurrencyDefaults(cfg *ConcurrencyConfig) {
	if cfg.BatchEmbedSize == 0 {
		cfg.BatchEmbedSize = 10
	}
	if cfg.ParallelConcurrency == 0 {
		cfg.ParallelConcurrency = 10
	}
}

func applyMultiQueryDefaults(cfg *MultiQueryConfig) {
	if cfg.Count == 0 {
		cfg.Count = 3
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "rrf"
	}
	if cfg.RRFK == 0 {
		cfg.RRFK = 60
	}
}

func applyToolResultDefaults(cfg *ToolResultConfig) {
	if cfg.Default == 0 {
		cfg.Default = 2000
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = map[string]int{}
	}
	defaults := map[string]int{
		"browser":   500,
		"exec":      1500,
		"file_read": 2500,
		"web_fetch": 2500,
		"process":   1500,
	}
	for kind, threshold := range defaults {
		if _, ok := cfg.Thresholds[kind]; !ok {
			cfg.Thresholds[kind] = threshold
		}
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000 // ~500 tokens at 4 chars/token
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200 // ~50 tokens
	}
}

func applyThreadDefaults(cfg *ThreadConfig) {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if cfg.MaxGap == 0 {
		cfg.MaxGap = 5
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 3
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONTEXT_SELECTOR_MODEL_ID"); v != "" {
		cfg.Selection.ModelID = v
	}
}
