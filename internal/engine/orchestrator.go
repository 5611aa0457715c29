package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// ToolSanitizer scrubs a tool's successful output before it flows back into
// the conversation, defending against indirect prompt injection carried in
// tool results.
type ToolSanitizer interface {
	Sanitize(output string) string
}

// NopSanitizer passes output through unchanged.
type NopSanitizer struct{}

func (NopSanitizer) Sanitize(output string) string { return output }

// ApprovalPolicy decides whether a tool call requires human approval.
type ApprovalPolicy interface {
	RequiresApproval(toolName string, arguments map[string]any) bool
}

// AlwaysApprovalPolicy never requires approval.
type AlwaysApprovalPolicy struct{}

func (AlwaysApprovalPolicy) RequiresApproval(string, map[string]any) bool { return false }

// OrchestratorConfig configures one Tool Call Orchestrator.
type OrchestratorConfig struct {
	DefaultTimeout time.Duration
	MaxToolCalls   int // 0 = unlimited
	AllowedTools   map[string]struct{} // nil = no allowlist restriction
	ApprovalPolicy ApprovalPolicy
	ApprovalStore  ApprovalStore
	ApprovalTimeout time.Duration
	Sanitizer      ToolSanitizer
	Hooks          *HookExecutor
}

// Orchestrator executes a batch of tool calls requested in one LLM step,
// enforcing the counter, allowlist, approval gate, before/after hooks,
// per-tool timeout, and output sanitization described in spec §4.6.
type Orchestrator struct {
	tools  map[string]arc.ToolCallback
	config OrchestratorConfig
	total  *int64 // shared totalToolCallsCounter across the run
}

// NewOrchestrator builds an orchestrator over a set of registered tools and
// a counter shared across the whole run (so maxToolCalls is enforced across
// LLM rounds, not per-batch).
func NewOrchestrator(tools map[string]arc.ToolCallback, config OrchestratorConfig, sharedCounter *int64) *Orchestrator {
	if config.Sanitizer == nil {
		config.Sanitizer = NopSanitizer{}
	}
	if config.ApprovalPolicy == nil {
		config.ApprovalPolicy = AlwaysApprovalPolicy{}
	}
	return &Orchestrator{tools: tools, config: config, total: sharedCounter}
}

// ExecuteBatch runs every call in calls concurrently and returns one
// arc.Message (RoleTool) per call, in the same order as calls -- execution
// order is arbitrary, result order matches request order. A non-nil error
// means the whole run must abort (context cancellation, or a FailOnError
// BeforeToolCall hook erroring); callers must propagate it rather than
// treat the partial results as a completed round.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, hctx *arc.HookContext, calls []arc.ToolCall, toolsUsed *[]string, toolsUsedMu *sync.Mutex) ([]arc.Message, error) {
	results := make([]arc.Message, len(calls))
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		i, call := i, call
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.executeOne(ctx, hctx, call, toolsUsed, toolsUsedMu)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (o *Orchestrator) executeOne(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall, toolsUsed *[]string, toolsUsedMu *sync.Mutex) (arc.Message, error) {
	reject := func(text string) arc.Message {
		return arc.Message{Role: arc.RoleTool, Content: text, ToolCallID: call.ID, Timestamp: time.Now()}
	}

	if err := ctx.Err(); err != nil {
		return arc.Message{}, err
	}

	// Counter enforcement: atomic increment before the call.
	if o.config.MaxToolCalls > 0 {
		n := atomic.AddInt64(o.total, 1)
		if n > int64(o.config.MaxToolCalls) {
			return reject(fmt.Sprintf("Maximum tool call limit (%d) reached", o.config.MaxToolCalls)), nil
		}
	}

	// Allowlist.
	if o.config.AllowedTools != nil {
		if _, ok := o.config.AllowedTools[call.Name]; !ok {
			return reject(fmt.Sprintf("Tool %s is not allowed for this request", call.Name)), nil
		}
	}

	// Before-hook. A returned error means a FailOnError hook failed (or the
	// run was cancelled mid-hook) -- abort the whole run rather than
	// synthesize a tool result, per spec §4.4/§7.
	if o.config.Hooks != nil {
		outcome, err := o.config.Hooks.RunBeforeToolCall(ctx, hctx, call)
		if err != nil {
			return arc.Message{}, err
		}
		switch outcome.Kind {
		case HookReject:
			msg := reject(fmt.Sprintf("Tool call rejected: %s", outcome.Reason))
			o.config.Hooks.RunAfterToolCall(ctx, hctx, call, msg.Content, fmt.Errorf("rejected by hook"))
			return msg, nil
		case HookModify:
			call.Arguments = encodeArguments(outcome.Params)
		}
	}

	args := DecodeToolArguments(call.Arguments)

	// Approval gate.
	if o.config.ApprovalPolicy.RequiresApproval(call.Name, args) {
		if o.config.ApprovalStore == nil {
			msg := reject("Tool call rejected: approval required but no approval store configured")
			o.runAfter(ctx, hctx, call, msg.Content, fmt.Errorf("no approval store"))
			return msg, nil
		}
		start := time.Now()
		approved, reason := o.config.ApprovalStore.RequestApproval(ctx, call.ID, hctx.RunID, hctx.UserID, call.Name, call.Arguments, o.config.ApprovalTimeout)
		recordHITLWait(hctx, call, time.Since(start))
		if !approved {
			msg := reject(fmt.Sprintf("Tool call rejected: %s", reason))
			o.runAfter(ctx, hctx, call, msg.Content, fmt.Errorf("approval denied: %s", reason))
			return msg, nil
		}
	}

	tool, found := o.tools[call.Name]
	if !found {
		msg := reject(fmt.Sprintf("Error: tool %q not found", call.Name))
		o.runAfter(ctx, hctx, call, msg.Content, fmt.Errorf("tool not found"))
		return msg, nil
	}

	// toolsUsed is appended only after confirmation that the call will
	// actually run, so a hallucinated or rejected tool name never shows up
	// in AgentResult.ToolsUsed.
	toolsUsedMu.Lock()
	*toolsUsed = append(*toolsUsed, call.Name)
	toolsUsedMu.Unlock()

	timeout := o.config.DefaultTimeout
	if tool.TimeoutMs > 0 {
		timeout = time.Duration(tool.TimeoutMs) * time.Millisecond
	}

	output, err := invokeWithTimeout(ctx, tool, args, timeout)
	var msg arc.Message
	switch {
	case err == errToolTimeout:
		msg = reject(fmt.Sprintf("Error: Tool '%s' timed out after %dms", call.Name, timeout.Milliseconds()))
	case err != nil:
		msg = reject(fmt.Sprintf("Error: %s", err.Error()))
	default:
		msg = arc.Message{Role: arc.RoleTool, Content: o.config.Sanitizer.Sanitize(output), ToolCallID: call.ID, Timestamp: time.Now()}
	}

	o.runAfter(ctx, hctx, call, msg.Content, err)
	return msg, nil
}

func (o *Orchestrator) runAfter(ctx context.Context, hctx *arc.HookContext, call arc.ToolCall, result string, err error) {
	if o.config.Hooks != nil {
		o.config.Hooks.RunAfterToolCall(ctx, hctx, call, result, err)
	}
}

func recordHITLWait(hctx *arc.HookContext, call arc.ToolCall, d time.Duration) {
	if hctx.Metadata == nil {
		hctx.Metadata = make(map[string]any)
	}
	hctx.Metadata[fmt.Sprintf("hitlWaitMs_%s_%s", call.Name, call.ID)] = d.Milliseconds()
}

var errToolTimeout = fmt.Errorf("tool timed out")

// invokeWithTimeout calls tool.Invoke under a per-tool timeout and recovers
// from panics, mirroring the teacher executor's executeWithTimeout.
func invokeWithTimeout(ctx context.Context, tool arc.ToolCallback, args map[string]any, timeout time.Duration) (string, error) {
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, err := tool.Invoke(args)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-toolCtx.Done():
		return "", errToolTimeout
	}
}

func encodeArguments(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}
