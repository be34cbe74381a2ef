package selector

import (
	"strings"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/config"
)

// charsPerToken is the rough token estimator used wherever a real
// tokenizer isn't warranted, matching internal/toolresult's convention.
const charsPerToken = 4

// responseBuffer is reserved out of the model's context window for the
// assistant's own response.
const responseBuffer = 4000

// historyShare is the fraction of the remaining window reserved for
// selected history.
const historyShare = 0.3

// avgTokensPerMessage approximates a message's token footprint when
// converting a token budget into a message count.
const avgTokensPerMessage = 500

// contextWindows maps a model id (or family prefix) to its declared
// context window in tokens. Matched exact-then-longest-prefix.
var contextWindows = map[string]int{
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"claude-haiku":      200000,
	"claude-3":          200000,
	"gpt-4o":            128000,
	"gpt-4":             128000,
	"gpt-3.5":           16000,
	"gemini-1.5-pro":    2000000,
	"gemini-1.5-flash":  1000000,
	"gemini":            1000000,
	"kimi-k2":           256000,
	"kimi":              128000,
}

const defaultContextWindow = 128000

// resolveContextWindow looks up modelID exactly, then by longest matching
// prefix, then falls back to defaultContextWindow.
func resolveContextWindow(modelID string) int {
	if w, ok := contextWindows[modelID]; ok {
		return w
	}
	best := ""
	for prefix := range contextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return contextWindows[best]
	}
	return defaultContextWindow
}

// estimateTokens approximates a token count from character length.
func estimateTokens(text string) int {
	return (len([]rune(text)) + charsPerToken - 1) / charsPerToken
}

// complexityMultiplier scales the window by how elaborate the query looks:
// more than two question marks suggests a multi-part question that
// benefits from more history; fewer than one suggests a narrow, single-
// fact question that doesn't.
func complexityMultiplier(query string) float64 {
	qMarks := strings.Count(query, "?")
	switch {
	case qMarks > 2:
		return 1.3
	case qMarks < 1:
		return 0.7
	default:
		return 1.0
	}
}

// dynamicTopK computes topK from the model's declared context window minus
// the prompt tokens and a response buffer, scaled by the history share and
// query complexity, clamped to [MinTopK, MaxTopK].
func dynamicTopK(win config.WindowConfig, modelID, prompt, query string) int {
	window := resolveContextWindow(modelID)
	promptTokens := estimateTokens(prompt)

	remaining := window - promptTokens - responseBuffer
	if remaining < 0 {
		remaining = 0
	}

	historyTokens := float64(remaining) * historyShare
	topK := int(historyTokens / avgTokensPerMessage * complexityMultiplier(query))

	minTopK, maxTopK := win.MinTopK, win.MaxTopK
	if minTopK <= 0 {
		minTopK = 5
	}
	if maxTopK <= 0 {
		maxTopK = 50
	}
	if topK < minTopK {
		topK = minTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return topK
}
