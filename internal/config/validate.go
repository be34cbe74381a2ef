package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError collects every issue found, so a caller sees the whole
// list instead of fixing one field at a time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Selection.TopK <= 0 {
		issues = append(issues, "selection.top_k must be > 0")
	}
	if cfg.Selection.RecentN < 0 {
		issues = append(issues, "selection.recent_n must be >= 0")
	}
	if cfg.Selection.MinScore < 0 || cfg.Selection.MinScore > 1 {
		issues = append(issues, "selection.min_score must be between 0 and 1")
	}

	if cfg.Window.MinTopK <= 0 {
		issues = append(issues, "window.min_top_k must be > 0")
	}
	if cfg.Window.MaxTopK < cfg.Window.MinTopK {
		issues = append(issues, "window.max_top_k must be >= window.min_top_k")
	}

	if sum := cfg.Scoring.BM25Weight + cfg.Scoring.CosineWeight; math.Abs(sum-1.0) > 1e-6 {
		issues = append(issues, fmt.Sprintf("scoring weights must sum to 1.0, got %.4f", sum))
	}

	if cfg.Concurrency.BatchEmbedSize <= 0 {
		issues = append(issues, "concurrency.batch_embed_size must be > 0")
	}
	if cfg.Concurrency.ParallelConcurrency <= 0 {
		issues = append(issues, "concurrency.parallel_concurrency must be > 0")
	}

	if cfg.MultiQuery.Count < 0 {
		issues = append(issues, "multi_query.count must be >= 0")
	}
	switch cfg.MultiQuery.Strategy {
	case "rrf", "round_robin":
	default:
		issues = append(issues, `multi_query.strategy must be "rrf" or "round_robin"`)
	}

	if cfg.Memory.MinConfidence < 0 || cfg.Memory.MinConfidence > 1 {
		issues = append(issues, "memory.min_confidence must be between 0 and 1")
	}
	if cfg.Memory.RelatednessThreshold < 0 || cfg.Memory.RelatednessThreshold > 1 {
		issues = append(issues, "memory.relatedness_threshold must be between 0 and 1")
	}

	if cfg.Thread.SimilarityThreshold < 0 || cfg.Thread.SimilarityThreshold > 1 {
		issues = append(issues, "thread.similarity_threshold must be between 0 and 1")
	}
	if cfg.Thread.MaxGap < 0 {
		issues = append(issues, "thread.max_gap must be >= 0")
	}
	if cfg.Thread.WindowSize <= 0 {
		issues = append(issues, "thread.window_size must be > 0")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
