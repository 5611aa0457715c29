package engine

import (
	"context"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// HookOutcome is the tagged result of a BeforeAgentStart/BeforeToolCall hook.
type HookOutcome struct {
	Kind   HookOutcomeKind
	Reason string          // Reject
	Params map[string]any  // Modify
	Approval *PendingApproval // PendingApproval
}

// HookOutcomeKind tags a HookOutcome's variant.
type HookOutcomeKind int

const (
	HookContinue HookOutcomeKind = iota
	HookReject
	HookModify
	HookPendingApproval
)

// PendingApproval marks a BeforeToolCall hook as wanting human approval
// before the call proceeds.
type PendingApproval struct {
	ID      string
	Message string
}

// HookFamily identifies one of the four hook scopes the engine fires.
type HookFamily string

const (
	BeforeAgentStart  HookFamily = "BeforeAgentStart"
	AfterAgentComplete HookFamily = "AfterAgentComplete"
	BeforeToolCall    HookFamily = "BeforeToolCall"
	AfterToolCall     HookFamily = "AfterToolCall"
)

// AgentHook runs at BeforeAgentStart/AfterAgentComplete scope.
type AgentHook struct {
	Name        string
	Order       int
	FailOnError bool
	Before      func(ctx context.Context, hctx *arc.HookContext) (HookOutcome, error)
	After       func(ctx context.Context, hctx *arc.HookContext, result *arc.AgentResult) error
}

// ToolHook runs at BeforeToolCall/AfterToolCall scope.
type ToolHook struct {
	Name        string
	Order       int
	FailOnError bool
	Before      func(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall) (HookOutcome, error)
	After       func(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall, result string, toolErr error) error
}

// HookExecutor runs ordered hooks at each of the four scopes, lower Order
// first. Fail-open hooks log-and-ignore non-cancellation errors; fail-close
// hooks abort the run with HOOK_REJECTED.
type HookExecutor struct {
	agentHooks []AgentHook
	toolHooks  []ToolHook
	logger     Logger
}

// Logger is the minimal logging capability the executor needs; satisfied by
// *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewHookExecutor builds an executor over agent- and tool-scope hooks,
// sorted by Order ascending.
func NewHookExecutor(agentHooks []AgentHook, toolHooks []ToolHook, logger Logger) *HookExecutor {
	sortAgentHooks(agentHooks)
	sortToolHooks(toolHooks)
	return &HookExecutor{agentHooks: agentHooks, toolHooks: toolHooks, logger: logger}
}

func sortAgentHooks(h []AgentHook) {
	for i := 1; i < len(h); i++ {
		for j := i; j > 0 && h[j].Order < h[j-1].Order; j-- {
			h[j], h[j-1] = h[j-1], h[j]
		}
	}
}

func sortToolHooks(h []ToolHook) {
	for i := 1; i < len(h); i++ {
		for j := i; j > 0 && h[j].Order < h[j-1].Order; j-- {
			h[j], h[j-1] = h[j-1], h[j]
		}
	}
}

// RunBeforeAgentStart fires every BeforeAgentStart hook in order, stopping
// at the first Reject/Modify/PendingApproval outcome.
func (e *HookExecutor) RunBeforeAgentStart(ctx context.Context, hctx *arc.HookContext) (HookOutcome, error) {
	for _, h := range e.agentHooks {
		if h.Before == nil {
			continue
		}
		outcome, err := h.Before(ctx, hctx)
		if err != nil {
			if IsCancellation(err) {
				return HookOutcome{}, err
			}
			if h.FailOnError {
				return HookOutcome{Kind: HookReject, Reason: err.Error()}, nil
			}
			e.warn("before-agent-start hook failed open", "hook", h.Name, "err", err)
			continue
		}
		if outcome.Kind != HookContinue {
			return outcome, nil
		}
	}
	return HookOutcome{Kind: HookContinue}, nil
}

// RunAfterAgentComplete fires every AfterAgentComplete hook, always, even
// when result reflects a failed run. Hook errors are logged and never mask
// the primary result.
func (e *HookExecutor) RunAfterAgentComplete(ctx context.Context, hctx *arc.HookContext, result *arc.AgentResult) {
	for _, h := range e.agentHooks {
		if h.After == nil {
			continue
		}
		if err := h.After(ctx, hctx, result); err != nil && !IsCancellation(err) {
			e.warn("after-agent-complete hook failed", "hook", h.Name, "err", err)
		}
	}
}

// RunBeforeToolCall fires every BeforeToolCall hook for one call, stopping
// at the first non-Continue outcome. A FailOnError hook's own error aborts
// the whole run with HOOK_REJECTED (spec §4.4) -- this is distinct from a
// hook deliberately returning HookOutcome{Kind: HookReject}, which only
// rejects that one tool call and lets the run continue with a synthesized
// ToolMessage.
func (e *HookExecutor) RunBeforeToolCall(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall) (HookOutcome, error) {
	for _, h := range e.toolHooks {
		if h.Before == nil {
			continue
		}
		outcome, err := h.Before(ctx, hctx, call)
		if err != nil {
			if IsCancellation(err) {
				return HookOutcome{}, err
			}
			if h.FailOnError {
				return HookOutcome{}, NewAgentError(arc.ErrHookRejected, err.Error(), err)
			}
			e.warn("before-tool-call hook failed open", "hook", h.Name, "tool", call.Name, "err", err)
			continue
		}
		if outcome.Kind != HookContinue {
			return outcome, nil
		}
	}
	return HookOutcome{Kind: HookContinue}, nil
}

// RunAfterToolCall fires every AfterToolCall hook for one call, always
// (success or failure).
func (e *HookExecutor) RunAfterToolCall(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall, result string, toolErr error) {
	for _, h := range e.toolHooks {
		if h.After == nil {
			continue
		}
		if err := h.After(ctx, hctx, call, result, toolErr); err != nil && !IsCancellation(err) {
			e.warn("after-tool-call hook failed", "hook", h.Name, "tool", call.Name, "err", err)
		}
	}
}

func (e *HookExecutor) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
