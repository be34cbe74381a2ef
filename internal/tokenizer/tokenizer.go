// Package tokenizer provides the lowercase/punctuation-strip tokenization
// shared by the scorer, FTS pre-filter, and query expander.
package tokenizer

import "strings"

// minTokenLen is the minimum token length kept by Tokenize.
const minTokenLen = 2

// minKeywordLen is the minimum token length kept by keyword extraction,
// which is stricter than general tokenization.
const minKeywordLen = 3

// Stats bundles the three tokenizer outputs callers typically want
// together: the token sequence, the number of distinct tokens, and the
// original text length in runes.
type Stats struct {
	Tokens      []string
	UniqueCount int
	Length      int
}

// Tokenize lowercases text, replaces non-word runes with spaces, and drops
// tokens shorter than two characters, keeping pure numeric tokens
// regardless of length.
func Tokenize(text string) []string {
	normalized := normalize(text)
	fields := strings.Fields(normalized)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTokenLen || isNumeric(f) {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenizeKeywords applies the stricter length-3 cutoff used by keyword
// extraction (the FTS pre-filter).
func TokenizeKeywords(text string) []string {
	normalized := normalize(text)
	fields := strings.Fields(normalized)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minKeywordLen || isNumeric(f) {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TermFrequency returns a term → count mapping over the tokenized text.
func TermFrequency(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	return tf
}

// ComputeStats returns the combined tokens/unique-count/length view.
func ComputeStats(text string) Stats {
	tokens := Tokenize(text)
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	return Stats{
		Tokens:      tokens,
		UniqueCount: len(unique),
		Length:      len([]rune(text)),
	}
}

func normalize(text string) string {
	lower := strings.ToLower(text)
	var sb strings.Builder
	sb.Grow(len(lower))
	for _, r := range lower {
		if isWordRune(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}

func isNumeric(s string) bool {
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
