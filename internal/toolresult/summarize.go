package toolresult

import (
	"context"
	"fmt"
	"strings"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
)

// headTailToolKinds have a natural head/tail shape (command output) where
// truncation keeps both ends instead of just the head.
var headTailToolKinds = map[string]bool{
	"exec":    true,
	"process": true,
}

const (
	headShare = 0.6
	tailShare = 0.4
	// truncationBudgetChars bounds the truncation fallback's preview size;
	// independent of the summarization length limits.
	truncationBudgetChars = 2000
)

// summarizeOrTruncate produces a preview of content: a model-generated
// summary within [minSummaryChars, maxSummaryChars] when a generator is
// configured and succeeds, otherwise a truncation preview.
func (s *Store) summarizeOrTruncate(ctx context.Context, toolKind, content string) string {
	if s.generator != nil {
		if summary, err := s.summarize(ctx, toolKind, content); err == nil && summary != "" {
			return summary
		}
	}
	return truncate(toolKind, content, truncationBudgetChars)
}

func (s *Store) summarize(ctx context.Context, toolKind, content string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following %s tool output in %d-%d characters. "+
			"Be specific about what happened, any errors, and the outcome.\n\n%s",
		toolKind, minSummaryChars, targetSummaryChars, content,
	)
	raw, err := s.generator.Generate(ctx, modelclient.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(raw)
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}
	return summary, nil
}

// truncate applies the spec's truncation ladder: head+tail for tools with
// a natural head/tail shape, head-only (snapped to the last newline within
// 80% of budget) otherwise.
func truncate(toolKind, content string, budget int) string {
	if len([]rune(content)) <= budget {
		return content
	}

	if headTailToolKinds[toolKind] {
		return truncateHeadTail(content, budget)
	}
	return truncateHeadOnly(content, budget)
}

func truncateHeadTail(content string, budget int) string {
	runes := []rune(content)
	headChars := int(float64(budget) * headShare)
	tailChars := int(float64(budget) * tailShare)

	head := string(runes[:headChars])
	tail := string(runes[len(runes)-tailChars:])
	omitted := len(runes) - headChars - tailChars

	return fmt.Sprintf("%s\n\n[... %d characters omitted ...]\n\n%s", head, omitted, tail)
}

func truncateHeadOnly(content string, budget int) string {
	runes := []rune(content)
	cutoff := int(float64(budget) * 0.8)
	if cutoff > len(runes) {
		cutoff = len(runes)
	}
	head := string(runes[:cutoff])
	if idx := strings.LastIndex(head, "\n"); idx > 0 {
		head = head[:idx]
	}
	return head + "\n\n[... truncated ...]"
}
