// Package engine is the pipeline controller: the sole public surface the
// host integrates against. It owns the selector, extractor, and
// tool-result subsystems and exposes them as three idempotent hooks --
// before-turn, after-turn, and tool-call-return -- registered on a
// hooks.Registry.
//
// Grounded on the reference agent runtime's lazy, guard-flag-serialized
// initialization pattern (internal/plugins/runtime_registry.go's
// per-entry sync.Once fields) and its hook-dispatch contract
// (internal/hooks/global.go), generalized from per-plugin lifecycle
// hooks into the spec's fixed three-callback surface. The error-handling
// contract is deliberately conservative: whatever goes wrong inside the
// engine, a hook invocation degrades to passthrough rather than blocking
// or corrupting the host's transcript.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/config"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/extractor"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/factstore"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/hooks"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/modelclient"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/observability"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/queryexpand"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/selector"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/store"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/toolresult"
	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies bundles the constructed subsystems an Engine wires
// together. Only Config is required; every other field may be nil, in
// which case the corresponding stage degrades to passthrough rather than
// failing the turn.
//
// The selector's raw constituents (DB, Embedder, Facts, Expander,
// CrossEncoder) are supplied individually rather than as a prebuilt
// *selector.Selector, because the engine builds one selector per
// resolved model-family profile -- each profile can carry its own
// topK/window bounds -- and lazily caches them.
type Dependencies struct {
	Config       *config.Config
	DB           *store.Store
	Embedder     modelclient.Embedder
	Facts        *factstore.Store
	Expander     *queryexpand.Expander
	CrossEncoder selector.CrossEncoder
	Extractor    *extractor.Extractor
	ToolResults  *toolresult.Store
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
}

// Engine is the pipeline controller.
type Engine struct {
	cfg *config.Config

	db           *store.Store
	embedder     modelclient.Embedder
	facts        *factstore.Store
	expander     *queryexpand.Expander
	crossEncoder selector.CrossEncoder

	extractor   *extractor.Extractor
	toolResults *toolresult.Store
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer

	initOnce sync.Once
	initErr  error

	mu        sync.RWMutex
	disabled  bool
	selectors map[string]*selector.Selector
}

// New constructs an Engine from its dependencies. Initialization work
// that must run exactly once, the first time a hook fires, is deferred
// to ensureInitialized rather than performed here, per the spec's "lazy
// on first invocation, serialized by a guard flag" requirement.
func New(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
	}
	return &Engine{
		cfg:          deps.Config,
		db:           deps.DB,
		embedder:     deps.Embedder,
		facts:        deps.Facts,
		expander:     deps.Expander,
		crossEncoder: deps.CrossEncoder,
		extractor:    deps.Extractor,
		toolResults:  deps.ToolResults,
		logger:       logger,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
		selectors:    make(map[string]*selector.Selector),
	}
}

// selectorFor returns the cached selector for a resolved profile name,
// constructing and caching it on first use. Each profile gets its own
// selector because topK/window bounds (and therefore the cache's
// fingerprint inputs) differ per family.
func (e *Engine) selectorFor(profileName string) *selector.Selector {
	e.mu.RLock()
	sel, ok := e.selectors[profileName]
	e.mu.RUnlock()
	if ok {
		return sel
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sel, ok := e.selectors[profileName]; ok {
		return sel
	}
	effective := e.cfg.ResolveProfile(profileName)
	sel = selector.New(effective, e.db, e.embedder, e.facts, e.expander, e.crossEncoder)
	e.selectors[profileName] = sel
	return sel
}

// RegisterHooks registers the engine's three callbacks on registry. It is
// the only call a host needs to make; the returned registration IDs are
// not needed for normal operation and are discarded.
func (e *Engine) RegisterHooks(registry *hooks.Registry) {
	registry.Register(string(hooks.EventBeforeTurn), e.beforeTurn,
		hooks.WithName("context_selector.before_turn"), hooks.WithPriority(hooks.PriorityNormal))
	registry.Register(string(hooks.EventAfterTurn), e.afterTurn,
		hooks.WithName("context_selector.after_turn"), hooks.WithPriority(hooks.PriorityNormal))
	registry.Register(string(hooks.EventToolCallReturn), e.toolCallReturn,
		hooks.WithName("context_selector.tool_call_return"), hooks.WithPriority(hooks.PriorityNormal))
}

// ensureInitialized performs one-time startup validation on the first
// hook invocation. A nil configuration is a fatal initialization failure
// per the spec: the engine enters a disabled state and every hook
// degrades to passthrough for the remainder of the process.
func (e *Engine) ensureInitialized(ctx context.Context) error {
	e.initOnce.Do(func() {
		if e.cfg == nil {
			e.initErr = fmt.Errorf("engine: nil configuration")
		}
		if e.initErr != nil {
			e.mu.Lock()
			e.disabled = true
			e.mu.Unlock()
			e.logger.Error(ctx, "engine initialization failed, degrading to passthrough", "error", e.initErr)
			if e.metrics != nil {
				e.metrics.RecordError("engine", "init_failed")
			}
		}
	})
	return e.initErr
}

func (e *Engine) isDisabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disabled
}

func (e *Engine) turnContextFromEvent(event *hooks.Event) models.TurnContext {
	turn := models.TurnContext{SessionID: event.SessionKey}
	if event.Context != nil {
		if v, ok := event.Context["user_id"].(string); ok {
			turn.UserID = v
		}
		if v, ok := event.Context["agent_id"].(string); ok {
			turn.AgentID = v
		}
		if v, ok := event.Context["model_id"].(string); ok {
			turn.ModelID = v
		}
	}
	return turn
}

// indexMessage feeds a message into the full-text index so a later turn's
// FTS pre-filter (internal/ftsfilter) can find it. A nil db, or any index
// failure, is silently ignored -- the pre-filter fails open onto the same
// messages either way. Per spec, a message with no host-assigned id gets a
// synthetic one minted from its session and timestamp; this id never
// round-trips back to the host, so the same content admitted twice (e.g.
// across a retried turn) indexes as two distinct FTS rows rather than
// deduplicating.
func (e *Engine) indexMessage(ctx context.Context, m models.Message) {
	if e.db == nil {
		return
	}
	id := m.ID
	if id == "" {
		id = fmt.Sprintf("synthetic-%s-%d", m.SessionID, m.CreatedAt.UnixNano())
	}
	if err := e.db.IndexMessage(ctx, id, string(m.Role), m.Content); err != nil {
		e.logger.Error(ctx, "fts index failed", "error", err, "session_id", m.SessionID)
	}
}

// beforeTurn resolves an effective per-model-family config, invokes the
// selector, and replaces event.Messages with the filtered selection. Any
// failure -- a disabled engine or a selector error -- leaves event.Messages
// untouched (passthrough).
func (e *Engine) beforeTurn(ctx context.Context, event *hooks.Event) error {
	if err := e.ensureInitialized(ctx); err != nil || e.isDisabled() {
		return nil
	}
	if len(event.Messages) == 0 {
		return nil
	}

	turn := e.turnContextFromEvent(event)
	profile := profileNameFor(turn.ModelID)
	sel := e.selectorFor(profile)
	ctx = observability.AddModel(ctx, profile)
	ctx = observability.AddSessionID(ctx, turn.SessionID)

	prompt := event.Prompt
	messages := make([]models.Message, len(event.Messages))
	for i, m := range event.Messages {
		messages[i] = *m
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceSelection(ctx, turn.ModelID, len(messages))
		defer span.End()
	}

	selected, err := sel.Select(ctx, messages, prompt, turn)
	if err != nil {
		e.logger.Error(ctx, "selection failed, passing through full transcript", "error", err, "session_id", turn.SessionID)
		if e.metrics != nil {
			e.metrics.RecordError("selector", "select_failed")
		}
		return nil
	}

	out := make([]*models.Message, len(selected))
	for i := range selected {
		out[i] = &selected[i]
	}
	event.Messages = out
	return nil
}

// afterTurn indexes the turn's messages for later FTS pre-filtering and
// admits them into the extractor's per-session buffer, flushing it once
// the batch or time trigger fires. Extraction failures are logged and
// otherwise invisible to the host: the host is never blocked on this
// event's outcome. FTS indexing runs independently of extraction, since a
// nil extractor (host opted out of fact extraction) shouldn't also
// disable the FTS pre-filter.
func (e *Engine) afterTurn(ctx context.Context, event *hooks.Event) error {
	if err := e.ensureInitialized(ctx); err != nil || e.isDisabled() {
		return nil
	}

	turn := e.turnContextFromEvent(event)
	if turn.SessionID == "" {
		return nil
	}
	ctx = observability.AddSessionID(ctx, turn.SessionID)

	for _, m := range event.Messages {
		if m != nil {
			e.indexMessage(ctx, *m)
			if e.extractor != nil {
				e.extractor.Admit(turn.SessionID, *m)
			}
		}
	}
	if event.Message != nil {
		e.indexMessage(ctx, *event.Message)
		if e.extractor != nil {
			e.extractor.Admit(turn.SessionID, *event.Message)
		}
	}

	if e.extractor == nil || !e.extractor.ShouldExtract(turn.SessionID) {
		return nil
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceExtractionBatch(ctx, turn.SessionID, len(event.Messages))
		defer span.End()
	}

	if err := e.extractor.Flush(ctx, turn.UserID, turn.AgentID, turn.SessionID); err != nil {
		e.logger.Error(ctx, "extraction flush failed", "error", err, "session_id", turn.SessionID)
		if e.metrics != nil {
			e.metrics.RecordExtraction("generator_failed", 0)
		}
		return nil
	}
	if e.metrics != nil {
		e.metrics.RecordExtraction("success", 0)
	}
	return nil
}

// toolCallReturn externalizes an oversize tool result, replacing
// event.Context["result"] with the stored placeholder. Results under
// threshold, or any failure along the way, pass through unchanged.
func (e *Engine) toolCallReturn(ctx context.Context, event *hooks.Event) error {
	if err := e.ensureInitialized(ctx); err != nil || e.isDisabled() {
		return nil
	}
	if e.toolResults == nil || e.cfg == nil {
		return nil
	}

	result, ok := event.Context["result"].(string)
	if !ok || result == "" {
		return nil
	}
	toolKind, _ := event.Context["tool_kind"].(string)
	toolName, _ := event.Context["tool_name"].(string)
	toolUseID, _ := event.Context["tool_use_id"].(string)
	if toolKind == "" {
		toolKind = "default"
	}

	if !toolresult.IsOversize(e.cfg.ToolResult, toolKind, result) {
		return nil
	}

	turn := e.turnContextFromEvent(event)
	ctx = observability.AddSessionID(ctx, turn.SessionID)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceToolResultExternalize(ctx, toolKind)
		defer span.End()
	}

	placeholder, err := e.toolResults.Externalize(ctx, turn.SessionID, toolUseID, toolKind, toolName, result)
	if err != nil {
		e.logger.Error(ctx, "tool result externalization failed", "error", err, "tool_kind", toolKind)
		if e.metrics != nil {
			e.metrics.RecordError("toolresult", "externalize_failed")
		}
		return nil
	}

	event.Context["result"] = placeholder
	if e.metrics != nil {
		e.metrics.RecordToolResultExternalized(toolKind)
	}
	return nil
}

// profileNameFor maps a model id to one of the recognized profile
// families (kimi, anthropic, gemini), falling back to "default" for
// anything unrecognized.
func profileNameFor(modelID string) string {
	switch {
	case hasPrefix(modelID, "kimi"):
		return "kimi"
	case hasPrefix(modelID, "claude"):
		return "anthropic"
	case hasPrefix(modelID, "gemini"):
		return "gemini"
	default:
		return "default"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
