package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/StarkFactory/arc-reactor-sub012/internal/infra"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// LifecycleConfig wires every engine component into one Agent Run Lifecycle,
// grounded on the teacher's AgenticRuntime.Process (internal/agent/
// runtime.go): acquire a permit, build a run context, push the command
// through guards/hooks/cache/ReAct/guards again, then release the permit --
// every step recorded to Metrics regardless of outcome.
type LifecycleConfig struct {
	Concurrency      *Semaphore
	InputGuards      *InputGuardPipeline
	OutputGuards     *OutputGuardPipeline
	Hooks            *HookExecutor
	Cache            *ResponseCache
	Model            ChatModel // typically a *ReliableModel
	Tools            map[string]arc.ToolCallback
	Orchestrator     OrchestratorConfig
	Memory           MemoryStore
	Metrics          AgentMetrics
	ErrorMessages    ErrorMessageResolver
	HistoryBudget    int // chars; 0 disables trimming
	HistoryEstimator func([]arc.Message) int
	Coalesce         *infra.Group[string, reactOutcome]
}

// reactOutcome is the shareable result of one ReActEngine.RunBatch call,
// keyed by cache key so concurrent identical requests can be coalesced.
type reactOutcome struct {
	content     string
	toolsUsed   []string
	usage       *arc.TokenUsage
	toolHistory []arc.Message
}

// Lifecycle is the single entrypoint spec §4.14 describes: one Execute per
// batch command, one ExecuteStream per streaming command.
type Lifecycle struct {
	cfg LifecycleConfig
}

// NewLifecycle builds a Lifecycle over cfg, filling in Nop/default
// collaborators for anything left zero-valued.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	if cfg.Concurrency == nil {
		cfg.Concurrency = NewSemaphore(0)
	}
	if cfg.InputGuards == nil {
		cfg.InputGuards = NewInputGuardPipeline(nil, nil, nil)
	}
	if cfg.OutputGuards == nil {
		cfg.OutputGuards = NewOutputGuardPipeline(nil)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NewHookExecutor(nil, nil, nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.ErrorMessages == nil {
		cfg.ErrorMessages = DefaultErrorMessageResolver{}
	}
	if cfg.HistoryEstimator == nil {
		cfg.HistoryEstimator = EstimateChars
	}
	if cfg.Coalesce == nil {
		cfg.Coalesce = &infra.Group[string, reactOutcome]{}
	}
	return &Lifecycle{cfg: cfg}
}

// Execute drives one batch AgentCommand through the full lifecycle (spec
// §4.14 steps 1-12) and returns the sole observable outcome.
func (l *Lifecycle) Execute(ctx context.Context, cmd *arc.AgentCommand) *arc.AgentResult {
	// 1. Acquire permit.
	permit, err := l.cfg.Concurrency.Acquire(ctx)
	if err != nil {
		return l.fail(nil, arc.ErrTimeout, err, time.Now())
	}
	defer permit.Release()

	start := time.Now()

	// 2. Start run context.
	hctx := &arc.HookContext{
		RunID:          uuid.NewString(),
		UserID:         cmd.UserID,
		SystemPrompt:   cmd.SystemPrompt,
		UserPrompt:     cmd.UserPrompt,
		StartedAtNanos: start.UnixNano(),
		Metadata:       map[string]any{},
	}
	ctx, runSpan := startRunSpan(ctx, hctx.RunID, hctx.UserID)
	defer runSpan.End()

	// 3. Input guard pipeline.
	guardCtx, guardSpan := startSpan(ctx, "input_guards")
	decision := l.cfg.InputGuards.Run(guardCtx, arc.GuardCommand{
		Text:     cmd.UserPrompt,
		UserID:   cmd.UserID,
		Channel:  stringMeta(cmd.Metadata, arc.MetaChannel),
		Metadata: cmd.Metadata,
	})
	guardSpan.End()
	if !decision.Allowed {
		l.cfg.Metrics.RecordGuardRejection(decision.Stage)
		return l.fail(hctx, arc.ErrGuardRejected, newGuardError(decision), start)
	}

	// 4. BeforeAgentStart hooks.
	outcome, err := l.cfg.Hooks.RunBeforeAgentStart(ctx, hctx)
	if err != nil {
		if IsCancellation(err) {
			return l.fail(hctx, arc.ErrTimeout, err, start)
		}
		return l.fail(hctx, arc.ErrUnknown, err, start)
	}
	switch outcome.Kind {
	case HookReject:
		return l.fail(hctx, arc.ErrHookRejected, NewAgentError(arc.ErrHookRejected, outcome.Reason, nil), start)
	case HookModify:
		applyAgentModify(cmd, outcome.Params)
	}

	toolNames := toolNameList(l.cfg.Tools)
	hasTools := len(toolNames) > 0 && cmd.MaxToolCalls > 0

	// 5. Cache lookup.
	var cacheKey string
	if CacheEligible(hasTools, cmd.Temperature) {
		cacheKey = arc.CacheKey(cmd.SystemPrompt, cmd.UserPrompt, toolNames, cmd.Model)
		if cached, ok := l.cfg.Cache.Get(cacheKey); ok {
			l.cfg.Metrics.RecordCacheHit(true)
			result := &arc.AgentResult{
				Success:    true,
				Content:    cached.Content,
				ToolsUsed:  cached.ToolsUsed,
				DurationMs: time.Since(start).Milliseconds(),
				Metadata:   hctx.Metadata,
			}
			l.cfg.Hooks.RunAfterAgentComplete(ctx, hctx, result)
			l.cfg.Metrics.RecordRun(true, result.DurationMs)
			return result
		}
		l.cfg.Metrics.RecordCacheHit(false)
	}

	// 6. Trim history to budget before entering the engine.
	cmd.ConversationHistory = TrimHistory(cmd.ConversationHistory, l.cfg.HistoryBudget, l.cfg.HistoryEstimator)

	// 7. ReAct engine (batch). The LLM call and tool orchestrator spans are
	// opened inside RunBatch/the orchestrator itself since they span
	// multiple rounds; this span brackets the whole loop. Cacheable
	// requests are additionally coalesced by cache key, so a burst of
	// concurrent identical requests drives only one LLM round-trip.
	reactCtx, reactSpan := startSpan(ctx, "react_loop")
	reactEngine := NewReActEngine(ReActConfig{Model: l.cfg.Model, Tools: l.cfg.Tools, Orchestrator: l.cfg.Orchestrator})

	var content string
	var toolsUsed []string
	var usage *arc.TokenUsage
	var toolHistory []arc.Message
	if cacheKey != "" {
		var outcome reactOutcome
		var shared bool
		outcome, err, shared = l.cfg.Coalesce.Do(cacheKey, func() (reactOutcome, error) {
			c, t, u, th, e := reactEngine.RunBatch(reactCtx, hctx, cmd, l.cfg.Hooks)
			return reactOutcome{content: c, toolsUsed: t, usage: u, toolHistory: th}, e
		})
		l.cfg.Metrics.RecordCoalesce(shared)
		content, toolsUsed, usage, toolHistory = outcome.content, outcome.toolsUsed, outcome.usage, outcome.toolHistory
	} else {
		content, toolsUsed, usage, toolHistory, err = reactEngine.RunBatch(reactCtx, hctx, cmd, l.cfg.Hooks)
	}
	reactSpan.End()
	if err != nil {
		if IsCancellation(err) {
			return l.fail(hctx, arc.ErrTimeout, err, start)
		}
		return l.fail(hctx, ClassifyError(err), err, start)
	}

	// 8. Output guard pipeline.
	outputGuardCtx, outputSpan := startSpan(ctx, "output_guards")
	outputCtx := arc.OutputGuardContext{Command: cmd, ToolsUsed: toolsUsed, DurationMs: time.Since(start).Milliseconds()}
	outputOutcome := l.cfg.OutputGuards.Run(outputGuardCtx, outputCtx, content)
	outputSpan.End()
	if err := ctx.Err(); err != nil {
		return l.fail(hctx, arc.ErrTimeout, err, start)
	}
	if !outputOutcome.Allowed {
		l.cfg.Metrics.RecordGuardRejection("output:" + string(outputOutcome.Category))
		kind := arc.ErrOutputGuardReject
		if outputOutcome.TooShort {
			kind = arc.ErrOutputTooShort
		}
		return l.fail(hctx, kind, NewAgentError(kind, outputOutcome.Reason, nil), start)
	}
	finalContent := outputOutcome.Content

	// 9. Compose AgentResult.
	result := &arc.AgentResult{
		Success:    true,
		Content:    finalContent,
		ToolsUsed:  toolsUsed,
		TokenUsage: usage,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata:   hctx.Metadata,
	}

	// 10. AfterAgentComplete hooks (always; never mask the primary result).
	l.cfg.Hooks.RunAfterAgentComplete(ctx, hctx, result)

	// 11. Persist history, only on success. toolHistory carries the
	// assistant/tool message pairs from every intermediate ReAct round, so a
	// resumed conversation sees the same tool calls/results the model saw
	// when it produced finalContent (spec §3 pair-integrity invariant).
	if l.cfg.Memory != nil {
		sessionID := stringMeta(cmd.Metadata, arc.MetaSessionID)
		if sessionID != "" {
			history := append(append([]arc.Message(nil), cmd.ConversationHistory...),
				arc.Message{Role: arc.RoleUser, Content: cmd.UserPrompt, Timestamp: start},
			)
			history = append(history, toolHistory...)
			history = append(history, arc.Message{Role: arc.RoleAssistant, Content: finalContent, Timestamp: time.Now()})
			_ = l.cfg.Memory.Save(ctx, cmd.UserID, sessionID, history)
		}
	}

	if cacheKey != "" {
		l.cfg.Cache.Put(cacheKey, CachedResponse{Content: finalContent, ToolsUsed: toolsUsed})
	}

	for _, name := range toolsUsed {
		l.cfg.Metrics.RecordToolCall(name, true)
	}
	l.cfg.Metrics.RecordRun(true, result.DurationMs)
	return result
}

// ExecuteStream drives one streaming AgentCommand, forwarding StreamEvents
// to out as they're produced. The output guard pipeline does not apply to
// streamed text (spec §4.13 known gap, mirrored from the ReAct engine's own
// streaming limitation); the terminal AgentResult is still recorded for
// metrics/hooks/memory once the stream completes.
func (l *Lifecycle) ExecuteStream(ctx context.Context, cmd *arc.AgentCommand, out chan<- StreamEvent) *arc.AgentResult {
	permit, err := l.cfg.Concurrency.Acquire(ctx)
	if err != nil {
		close(out)
		return l.fail(nil, arc.ErrTimeout, err, time.Now())
	}
	defer permit.Release()

	start := time.Now()
	hctx := &arc.HookContext{
		RunID:          uuid.NewString(),
		UserID:         cmd.UserID,
		SystemPrompt:   cmd.SystemPrompt,
		UserPrompt:     cmd.UserPrompt,
		StartedAtNanos: start.UnixNano(),
		Metadata:       map[string]any{},
	}

	decision := l.cfg.InputGuards.Run(ctx, arc.GuardCommand{
		Text:     cmd.UserPrompt,
		UserID:   cmd.UserID,
		Channel:  stringMeta(cmd.Metadata, arc.MetaChannel),
		Metadata: cmd.Metadata,
	})
	if !decision.Allowed {
		close(out)
		l.cfg.Metrics.RecordGuardRejection(decision.Stage)
		return l.fail(hctx, arc.ErrGuardRejected, newGuardError(decision), start)
	}

	outcome, err := l.cfg.Hooks.RunBeforeAgentStart(ctx, hctx)
	if err != nil {
		close(out)
		return l.fail(hctx, arc.ErrUnknown, err, start)
	}
	if outcome.Kind == HookReject {
		close(out)
		return l.fail(hctx, arc.ErrHookRejected, NewAgentError(arc.ErrHookRejected, outcome.Reason, nil), start)
	}
	if outcome.Kind == HookModify {
		applyAgentModify(cmd, outcome.Params)
	}

	cmd.ConversationHistory = TrimHistory(cmd.ConversationHistory, l.cfg.HistoryBudget, l.cfg.HistoryEstimator)

	reactEngine := NewReActEngine(ReActConfig{Model: l.cfg.Model, Tools: l.cfg.Tools, Orchestrator: l.cfg.Orchestrator})
	streamResult, err := reactEngine.RunStream(ctx, hctx, cmd, l.cfg.Hooks, out)
	if err != nil {
		if IsCancellation(err) {
			return l.fail(hctx, arc.ErrTimeout, err, start)
		}
		return l.fail(hctx, ClassifyError(err), err, start)
	}

	result := &arc.AgentResult{
		Success:    true,
		Content:    streamResult.FinalContent,
		ToolsUsed:  streamResult.ToolsUsed,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata:   hctx.Metadata,
	}
	l.cfg.Hooks.RunAfterAgentComplete(ctx, hctx, result)

	if l.cfg.Memory != nil {
		sessionID := stringMeta(cmd.Metadata, arc.MetaSessionID)
		if sessionID != "" {
			history := append(append([]arc.Message(nil), cmd.ConversationHistory...),
				arc.Message{Role: arc.RoleUser, Content: cmd.UserPrompt, Timestamp: start},
			)
			history = append(history, streamResult.ToolHistory...)
			history = append(history, arc.Message{Role: arc.RoleAssistant, Content: streamResult.FinalContent, Timestamp: time.Now()})
			_ = l.cfg.Memory.Save(ctx, cmd.UserID, sessionID, history)
		}
	}

	for _, name := range streamResult.ToolsUsed {
		l.cfg.Metrics.RecordToolCall(name, true)
	}
	l.cfg.Metrics.RecordRun(true, result.DurationMs)
	return result
}

func (l *Lifecycle) fail(hctx *arc.HookContext, kind arc.AgentErrorKind, cause error, start time.Time) *arc.AgentResult {
	result := &arc.AgentResult{
		Success:      false,
		ErrorCode:    kind,
		ErrorMessage: l.cfg.ErrorMessages.Resolve(kind),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if hctx != nil {
		result.Metadata = hctx.Metadata
		l.cfg.Hooks.RunAfterAgentComplete(context.Background(), hctx, result)
	}
	l.cfg.Metrics.RecordErrorKind(kind)
	l.cfg.Metrics.RecordRun(false, result.DurationMs)
	return result
}

func newGuardError(decision GuardDecision) error {
	return NewAgentError(arc.ErrGuardRejected, decision.Reason, nil)
}

func stringMeta(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return v
}

// applyAgentModify lets a BeforeAgentStart hook override the system/user
// prompt via well-known keys in its Params map, mirroring the tool-call
// HookModify contract in orchestrator.go.
func applyAgentModify(cmd *arc.AgentCommand, params map[string]any) {
	if params == nil {
		return
	}
	if v, ok := params["systemPrompt"].(string); ok {
		cmd.SystemPrompt = v
	}
	if v, ok := params["userPrompt"].(string); ok {
		cmd.UserPrompt = v
	}
}

func toolNameList(tools map[string]arc.ToolCallback) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
