package extractor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// RawFact is the unnormalized shape a model response parses into, before
// category mapping, truncation, and confidence clamping.
type RawFact struct {
	Category   string  `json:"category,omitempty"`
	Key        string  `json:"key,omitempty"`
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RawSummary is the unnormalized summary shape.
type RawSummary struct {
	Topic    string   `json:"topic,omitempty"`
	Content  string   `json:"content,omitempty"`
	Entities []string `json:"entities,omitempty"`
	Projects []string `json:"projects,omitempty"`
}

// ParseResult is what Parse always returns, with empty slices/zero values
// on exhausted recovery strategies rather than an error.
type ParseResult struct {
	Facts   []RawFact
	Summary RawSummary
}

type rawResponse struct {
	Facts   []RawFact  `json:"facts,omitempty"`
	Summary RawSummary `json:"summary,omitempty"`
}

var (
	fenceOpenRe  = regexp.MustCompile("(?s)```(?:json)?\\s*")
	fenceCloseRe = regexp.MustCompile("(?s)```\\s*$")
	// completeFactRe matches a fully-closed fact object, tolerant of key
	// order and extra whitespace.
	completeFactRe = regexp.MustCompile(`(?s)\{\s*"category"\s*:\s*"([^"]*)"\s*,\s*"key"\s*:\s*"([^"]*)"\s*,\s*"value"\s*:\s*"([^"]*)"\s*,\s*"confidence"\s*:\s*([0-9.]+)\s*\}`)
	// incompleteFactRe matches a fact object truncated mid-stream: the
	// three required fields appear but the closing brace never arrived.
	incompleteFactRe = regexp.MustCompile(`(?s)"category"\s*:\s*"([^"]*)"\s*,\s*"key"\s*:\s*"([^"]*)"\s*,\s*"value"\s*:\s*"([^"]*)"\s*,\s*"confidence"\s*:\s*([0-9.]+)`)
	summaryObjRe     = regexp.MustCompile(`(?s)"summary"\s*:\s*(\{.*)`)
)

// Parse normalizes and parses a model response into facts and a summary,
// never returning an error: exhausted recovery strategies yield an empty
// ParseResult.
func Parse(raw string) ParseResult {
	text := normalizeResponseText(raw)

	if result, ok := tryDirectParse(text); ok {
		return result
	}
	if result, ok := tryBalancedParse(text); ok {
		return result
	}
	return repairParse(text)
}

// normalizeResponseText converts literal "\n" sequences to real newlines
// when the text otherwise has none, strips markdown code fences (closed or
// left dangling by truncation), and skips any leading prose before the
// first JSON-looking character.
func normalizeResponseText(raw string) string {
	text := raw
	if !strings.Contains(text, "\n") && strings.Contains(text, "\\n") {
		text = strings.ReplaceAll(text, "\\n", "\n")
	}

	text = fenceOpenRe.ReplaceAllString(text, "")
	text = fenceCloseRe.ReplaceAllString(text, "")

	if idx := strings.IndexAny(text, "{["); idx > 0 {
		text = text[idx:]
	}
	return strings.TrimSpace(text)
}

func tryDirectParse(text string) (ParseResult, bool) {
	if !validateAgainstSchema(text) {
		return ParseResult{}, false
	}
	var resp rawResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return ParseResult{}, false
	}
	if isEmptyResponse(resp) {
		return ParseResult{}, false
	}
	return ParseResult{Facts: resp.Facts, Summary: resp.Summary}, true
}

// tryBalancedParse extracts the first balanced {...} or [...] substring
// and attempts to parse it, handling a response with trailing garbage
// after otherwise-valid JSON.
func tryBalancedParse(text string) (ParseResult, bool) {
	balanced := extractBalanced(text)
	if balanced == "" || !validateAgainstSchema(balanced) {
		return ParseResult{}, false
	}
	var resp rawResponse
	if err := json.Unmarshal([]byte(balanced), &resp); err != nil {
		return ParseResult{}, false
	}
	if isEmptyResponse(resp) {
		return ParseResult{}, false
	}
	return ParseResult{Facts: resp.Facts, Summary: resp.Summary}, true
}

// isEmptyResponse reports whether resp carries neither facts nor a
// summary. A syntactically-valid JSON object that happens to parse
// against rawResponse's fields but contributes nothing (e.g. a
// fact-shaped object with no "facts"/"summary" keys of its own) must not
// short-circuit the repair ladder.
func isEmptyResponse(resp rawResponse) bool {
	return len(resp.Facts) == 0 && resp.Summary.Topic == "" && resp.Summary.Content == ""
}

// extractBalanced returns the first top-level balanced bracket expression
// in text, tracking string literals so braces inside quoted values don't
// throw off the depth count.
func extractBalanced(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	open := text[start]
	closeByte := byte('}')
	if open == '[' {
		closeByte = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeByte:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairParse regex-scans for fact objects (complete, then incomplete) and
// attempts to recover a summary sub-object, for responses too mangled for
// any JSON parse to succeed.
func repairParse(text string) ParseResult {
	var facts []RawFact

	for _, m := range completeFactRe.FindAllStringSubmatch(text, -1) {
		facts = append(facts, rawFactFromMatch(m))
	}
	if len(facts) == 0 {
		for _, m := range incompleteFactRe.FindAllStringSubmatch(text, -1) {
			facts = append(facts, rawFactFromMatch(m))
		}
	}

	var summary RawSummary
	if m := summaryObjRe.FindStringSubmatch(text); m != nil {
		if balanced := extractBalanced(m[1]); balanced != "" {
			_ = json.Unmarshal([]byte(balanced), &summary)
		}
	}

	return ParseResult{Facts: facts, Summary: summary}
}

func rawFactFromMatch(m []string) RawFact {
	confidence, _ := strconv.ParseFloat(m[4], 64)
	return RawFact{
		Category:   m[1],
		Key:        m[2],
		Value:      m[3],
		Confidence: confidence,
	}
}

// categoryAliases maps common model output variants onto the canonical
// FactCategory values.
var categoryAliases = map[string]models.FactCategory{
	"preference":    models.CategoryPreference,
	"pref":          models.CategoryPreference,
	"decision":      models.CategoryDecision,
	"choice":        models.CategoryDecision,
	"project":       models.CategoryProject,
	"system":        models.CategorySystem,
	"environment":   models.CategorySystem,
	"error_pattern": models.CategoryErrorPattern,
	"error":         models.CategoryErrorPattern,
	"bug":           models.CategoryErrorPattern,
	"personal":      models.CategoryPersonal,
	"workflow":       models.CategoryWorkflow,
	"process":        models.CategoryWorkflow,
}

// normalizeFact maps a RawFact onto a models.Fact: truncating Value,
// clamping confidence to [0,1], mapping category aliases (defaulting to
// CategoryProject when unrecognized, since most uncategorized extractions
// are project-context notes), and stamping SourceID when missing.
func normalizeFact(f RawFact, sourceID string) models.Fact {
	category, ok := categoryAliases[strings.ToLower(strings.TrimSpace(f.Category))]
	if !ok {
		category = models.CategoryProject
	}

	value := f.Value
	if len(value) > factTruncateChars {
		value = value[:factTruncateChars]
	}

	confidence := f.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	key := f.Key
	if key == "" {
		key = string(category)
	}

	return models.Fact{
		Category:   category,
		Key:        key,
		Value:      value,
		Confidence: float32(confidence),
		SourceID:   sourceID,
	}
}
