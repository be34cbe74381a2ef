// Package extractor buffers recent turn messages per session and, once a
// batch-size or time trigger fires, asks a model to pull structured facts
// and a running summary out of them. Parsing is built to survive
// truncated or malformed model output: a direct-parse attempt falls back
// to balanced-bracket extraction, then to a regex repair pass, and never
// returns an error to the caller — only empty results.
//
// Grounded on the reference agent runtime's memory-extraction worker,
// generalized from its single-shot JSON parse into the spec's multi-stage
// repair ladder, and wired to internal/factstore for ingestion and
// internal/retry's Permanent/IsPermanent split to distinguish a malformed
// response (retry won't help) from a transient provider failure (it will).
package extractor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/factstore"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/retry"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

const (
	// DefaultBatchSize is the buffered-message count that triggers
	// extraction.
	DefaultBatchSize = 5
	// DefaultTimeTrigger is how long a non-empty buffer waits before
	// extraction fires regardless of size.
	DefaultTimeTrigger = 30 * time.Second
	// DefaultMinConfidence is the floor below which an extracted fact is
	// discarded.
	DefaultMinConfidence = 0.7
	// messageContentTruncateChars bounds per-message content in the
	// extraction prompt.
	messageContentTruncateChars = 1000
	// factTruncateChars bounds a normalized fact's Value field.
	factTruncateChars = 200
	// minMessageContentChars is the admission floor: shorter content
	// carries no extractable signal.
	minMessageContentChars = 10
)

// bufferedMessage is a message admitted into a session's extraction
// buffer.
type bufferedMessage struct {
	role    models.Role
	content string
}

// sessionState is the per-session extraction state: the pending message
// buffer, the time of the last extraction, and running totals.
type sessionState struct {
	buffer          []bufferedMessage
	lastExtraction  time.Time
	factsExtracted  int
	batchesExtracted int
}

// Config controls buffering, trigger thresholds, and ingestion floors.
type Config struct {
	BatchSize             int
	TimeTrigger            time.Duration
	MinConfidence          float64
	RelatednessThreshold   float64
	SummaryDedupThreshold  float64
}

// DefaultConfig returns the spec defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:            DefaultBatchSize,
		TimeTrigger:           DefaultTimeTrigger,
		MinConfidence:         DefaultMinConfidence,
		RelatednessThreshold:  factstore.DefaultRelatednessThreshold,
		SummaryDedupThreshold: factstore.DefaultSummaryDedupThreshold,
	}
}

// Extractor buffers messages per session and ingests extracted facts and
// summaries into a factstore.Store.
type Extractor struct {
	generator modelclient.Generator
	embedder  modelclient.Embedder
	facts     *factstore.Store
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*sessionState
	now      func() time.Time
}

// New constructs an Extractor. generator must be non-nil for extraction to
// do anything useful; embedder may be nil, in which case summary dedup and
// fact embeddings are skipped.
func New(generator modelclient.Generator, embedder modelclient.Embedder, facts *factstore.Store, cfg Config) *Extractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.TimeTrigger <= 0 {
		cfg.TimeTrigger = DefaultTimeTrigger
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	return &Extractor{
		generator: generator,
		embedder:  embedder,
		facts:     facts,
		cfg:       cfg,
		sessions:  make(map[string]*sessionState),
		now:       time.Now,
	}
}

// Admit offers a message to sessionID's buffer. It is silently dropped if
// it doesn't meet the admission rule: user/assistant role only, no
// tool-use/tool-result content, content length >= 10.
func (e *Extractor) Admit(sessionID string, msg models.Message) {
	if !admissible(msg) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stateFor(sessionID)
	st.buffer = append(st.buffer, bufferedMessage{role: msg.Role, content: msg.Content})
}

func admissible(msg models.Message) bool {
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return false
	}
	if len(msg.ToolCalls) > 0 || len(msg.ToolResults) > 0 {
		return false
	}
	return len(msg.Content) >= minMessageContentChars
}

func (e *Extractor) stateFor(sessionID string) *sessionState {
	st, ok := e.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		e.sessions[sessionID] = st
	}
	return st
}

// ShouldExtract reports whether sessionID's buffer has crossed the
// batch-size or time trigger.
func (e *Extractor) ShouldExtract(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.sessions[sessionID]
	if !ok || len(st.buffer) == 0 {
		return false
	}
	if len(st.buffer) >= e.cfg.BatchSize {
		return true
	}
	return e.now().Sub(st.lastExtraction) >= e.cfg.TimeTrigger
}

// Flush runs extraction over sessionID's buffer if non-empty, ingesting
// the result into the fact/summary store and clearing the buffer. Any
// failure clears the buffer anyway, per spec, to avoid retrying on poison
// input.
func (e *Extractor) Flush(ctx context.Context, userID, agentID, sessionID string) error {
	e.mu.Lock()
	st, ok := e.sessions[sessionID]
	if !ok || len(st.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}
	buffer := st.buffer
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		st.buffer = nil
		st.lastExtraction = e.now()
		st.batchesExtracted++
		e.mu.Unlock()
	}()

	if e.generator == nil || userID == "" {
		return nil
	}

	prompt := buildPrompt(buffer)
	raw, err := e.generator.Generate(ctx, modelclient.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   800,
	})
	if err != nil {
		return fmt.Errorf("extractor: generate: %w", err)
	}

	parsed := Parse(raw)

	count, err := e.ingest(ctx, userID, agentID, sessionID, parsed)
	if err != nil {
		return err
	}
	e.mu.Lock()
	st.factsExtracted += count
	e.mu.Unlock()
	return nil
}

func buildPrompt(buffer []bufferedMessage) string {
	var sb strings.Builder
	sb.WriteString("Extract facts and a running summary from this conversation excerpt.\n")
	sb.WriteString("Return JSON: {\"facts\": [{\"category\":...,\"key\":...,\"value\":...,\"confidence\":...}], ")
	sb.WriteString("\"summary\": {\"topic\":...,\"content\":...,\"entities\":[...],\"projects\":[...]}}\n\n")
	for i, m := range buffer {
		label := "USER"
		if m.role == models.RoleAssistant {
			label = "ASSISTANT"
		}
		content := m.content
		if len(content) > messageContentTruncateChars {
			content = content[:messageContentTruncateChars]
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, label, content)
	}
	return sb.String()
}

// ingest stores extracted facts above MinConfidence as user-scope facts
// carrying the originating agent/session, and dedups/merges the summary,
// returning the number of facts stored.
func (e *Extractor) ingest(ctx context.Context, userID, agentID, sessionID string, parsed ParseResult) (int, error) {
	stored := 0
	for _, f := range parsed.Facts {
		normalized := normalizeFact(f, sessionID)
		if normalized.Confidence < e.cfg.MinConfidence {
			continue
		}
		normalized.Scope = models.FactScopeUser
		normalized.UserID = userID
		normalized.AgentID = agentID
		normalized.SessionID = sessionID
		if e.embedder != nil {
			if vec, err := e.embedder.Embed(ctx, normalized.Key+" "+normalized.Value); err == nil {
				normalized.Embedding = vec
			}
		}
		if _, err := e.facts.PutFact(ctx, &normalized, models.ConflictKeepHighestConfidence); err != nil {
			return stored, fmt.Errorf("extractor: put fact: %w", err)
		}
		stored++
	}

	if parsed.Summary.Content != "" {
		content := formatSummary(parsed.Summary)
		summary := &models.Summary{
			Scope:     models.FactScopeUser,
			ScopeID:   userID,
			Content:   content,
			SpanStart: time.Now(),
			SpanEnd:   time.Now(),
		}
		if e.embedder != nil {
			if vec, err := e.embedder.Embed(ctx, content); err == nil {
				summary.Embedding = vec
			}
		}
		if _, err := e.facts.PutSummary(ctx, summary); err != nil {
			return stored, fmt.Errorf("extractor: put summary: %w", err)
		}
	}

	return stored, nil
}

func formatSummary(s RawSummary) string {
	var sb strings.Builder
	if s.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", s.Topic)
	}
	sb.WriteString(s.Content)
	if len(s.Entities) > 0 {
		fmt.Fprintf(&sb, "\nEntities: %s", strings.Join(s.Entities, ", "))
	}
	if len(s.Projects) > 0 {
		fmt.Fprintf(&sb, "\nProjects: %s", strings.Join(s.Projects, ", "))
	}
	return sb.String()
}

// IsRetryable reports whether err represents a transient provider failure
// worth retrying, versus a permanent (malformed input, classification)
// failure. Callers that want retry semantics around Flush's Generate call
// should wrap provider errors with retry.Permanent when they know the
// input itself is unfixable by retrying.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
