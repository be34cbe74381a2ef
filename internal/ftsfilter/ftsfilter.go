// Package ftsfilter decides when a query is specific enough to benefit
// from a full-text pre-filter pass, builds the FTS5 MATCH expression for
// it, and narrows a candidate message set to the survivors. It always
// fails open: any error from the underlying search leaves the input
// message set untouched rather than surfacing to the caller.
package ftsfilter

import (
	"context"
	"regexp"
	"strings"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/tokenizer"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// prefixWildcardMinLen is the minimum keyword length that gets an FTS5
// prefix wildcard appended, so short terms don't over-match.
const prefixWildcardMinLen = 4

// candidateBudgetMultiplier is how many times the requested candidate
// budget the FTS query asks for, to leave room for re-ranking downstream.
const candidateBudgetMultiplier = 2

var (
	quotedPhraseRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	functionCallRe  = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\s*\(\s*\)`)
	errorTokenRe    = regexp.MustCompile(`\b[A-Za-z0-9_]*(?:Error|Exception|panic|errno|traceback)\b`)
	pathLikeRe      = regexp.MustCompile(`(?:[./][A-Za-z0-9_.\-]+){2,}`)
	acronymRe       = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	numericTokenRe  = regexp.MustCompile(`\b\d{3,4}\b`)
	uppercaseWordRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*[A-Z][A-Za-z0-9_]*\b`)
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"and": true, "or": true, "but": true, "if": true, "then": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "this": true, "that": true, "it": true,
	"as": true, "by": true, "from": true, "up": true, "about": true, "into": true,
	"how": true, "what": true, "why": true, "when": true, "where": true, "who": true,
	"i": true, "you": true, "we": true, "they": true, "he": true, "she": true,
	"my": true, "your": true, "me": true, "us": true,
}

// ShouldTrigger reports whether query matches any of the heuristics that
// indicate a lexical pre-filter is worth running: quoted phrases,
// error-like tokens, function-call-shaped identifiers, path-like strings,
// all-caps technical acronyms, or 3-4 digit numeric tokens.
func ShouldTrigger(query string) bool {
	return quotedPhraseRe.MatchString(query) ||
		errorTokenRe.MatchString(query) ||
		functionCallRe.MatchString(query) ||
		pathLikeRe.MatchString(query) ||
		acronymRe.MatchString(query) ||
		numericTokenRe.MatchString(query)
}

// ExtractKeywords pulls the terms worth matching out of query: quoted
// phrases and uppercase identifiers are preserved verbatim (case intact),
// everything else is tokenized and stripped of stop words.
func ExtractKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]bool)

	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		keywords = append(keywords, term)
	}

	for _, match := range quotedPhraseRe.FindAllStringSubmatch(query, -1) {
		if match[1] != "" {
			add(match[1])
		} else if match[2] != "" {
			add(match[2])
		}
	}
	for _, match := range uppercaseWordRe.FindAllString(query, -1) {
		add(match)
	}
	for _, match := range acronymRe.FindAllString(query, -1) {
		add(match)
	}

	stripped := quotedPhraseRe.ReplaceAllString(query, " ")
	for _, tok := range tokenizer.TokenizeKeywords(stripped) {
		if stopWords[tok] {
			continue
		}
		add(tok)
	}

	return keywords
}

// BuildMatchExpression joins keywords with OR into an FTS5 MATCH
// expression, appending a prefix wildcard to terms of at least
// prefixWildcardMinLen characters. Keywords containing spaces are quoted
// as a phrase.
func BuildMatchExpression(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		escaped := strings.ReplaceAll(kw, `"`, `""`)
		if strings.ContainsAny(kw, " \t") {
			terms = append(terms, `"`+escaped+`"`)
			continue
		}
		if len([]rune(kw)) >= prefixWildcardMinLen {
			terms = append(terms, escaped+"*")
		} else {
			terms = append(terms, escaped)
		}
	}
	return strings.Join(terms, " OR ")
}

// Searcher is the subset of *store.Store the pre-filter depends on.
type Searcher interface {
	SearchFTS(ctx context.Context, matchExpr string, limit int) ([]store.FTSHit, error)
}

// Filter narrows messages to the FTS survivors of query plus the last
// recentN messages, which are always kept unconditionally. candidateBudget
// is the number of relevance candidates the caller ultimately wants; the
// FTS query asks for up to candidateBudgetMultiplier times that many hits.
// Any search error, or a query that doesn't trigger the heuristics, passes
// messages through unchanged.
func Filter(ctx context.Context, searcher Searcher, messages []models.Message, query string, candidateBudget, recentN int) []models.Message {
	if !ShouldTrigger(query) {
		return messages
	}

	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		return messages
	}

	matchExpr := BuildMatchExpression(keywords)
	limit := candidateBudget * candidateBudgetMultiplier
	if limit <= 0 {
		limit = candidateBudgetMultiplier
	}

	hits, err := searcher.SearchFTS(ctx, matchExpr, limit)
	if err != nil {
		return messages
	}

	matched := make(map[string]bool, len(hits))
	for _, h := range hits {
		matched[h.MessageID] = true
	}

	recentCutoff := len(messages) - recentN
	filtered := make([]models.Message, 0, len(messages))
	for i, m := range messages {
		if i >= recentCutoff || matched[m.ID] {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
