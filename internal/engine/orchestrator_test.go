package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

func newCounter(n int64) *int64 {
	v := n
	return &v
}

func runOne(o *Orchestrator, call arc.ToolCall) (arc.Message, []string) {
	msg, _, used := runOneErr(o, call)
	return msg, used
}

func runOneErr(o *Orchestrator, call arc.ToolCall) (arc.Message, error, []string) {
	var toolsUsed []string
	var mu sync.Mutex
	hctx := &arc.HookContext{RunID: "r1", Metadata: map[string]any{}}
	msgs, err := o.ExecuteBatch(context.Background(), hctx, []arc.ToolCall{call}, &toolsUsed, &mu)
	return msgs[0], err, toolsUsed
}

func okTool() arc.ToolCallback {
	return arc.ToolCallback{
		Name: "ok",
		Invoke: func(map[string]any) (string, error) {
			return "result", nil
		},
	}
}

func panicTool() arc.ToolCallback {
	return arc.ToolCallback{
		Name: "boom",
		Invoke: func(map[string]any) (string, error) {
			panic("kaboom")
		},
	}
}

func TestOrchestratorCounterEnforcedAcrossRounds(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(2) // already at budget from a prior round
	o := NewOrchestrator(tools, OrchestratorConfig{MaxToolCalls: 2}, counter)

	msg, used := runOne(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: call must be rejected over budget", used)
	}
	if msg.Content == "" {
		t.Error("expected a rejection message content")
	}
}

func TestOrchestratorAllowlistRejectsDisallowedTool(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{
		AllowedTools: map[string]struct{}{"other": {}},
	}, counter)

	_, used := runOne(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: disallowed tool must never run", used)
	}
}

func TestOrchestratorToolsUsedOnlyAppendedAfterConfirmation(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{}, counter)

	msg, used := runOne(o, arc.ToolCall{ID: "c1", Name: "unknown-tool", Arguments: "{}"})
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty for a tool that was never found", used)
	}
	if msg.Content == "" {
		t.Error("expected an error message for an unrecognized tool name")
	}

	msg2, used2 := runOne(o, arc.ToolCall{ID: "c2", Name: "ok", Arguments: "{}"})
	if len(used2) != 1 || used2[0] != "ok" {
		t.Errorf("toolsUsed = %v, want [ok] once the call actually runs", used2)
	}
	if msg2.Content != "result" {
		t.Errorf("msg.Content = %q, want %q", msg2.Content, "result")
	}
}

func TestOrchestratorSanitizesSuccessfulOutput(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{Sanitizer: upperSanitizer{}}, counter)

	msg, _ := runOne(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if msg.Content != "RESULT" {
		t.Errorf("msg.Content = %q, want sanitized %q", msg.Content, "RESULT")
	}
}

type upperSanitizer struct{}

func (upperSanitizer) Sanitize(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func TestOrchestratorRecoversFromToolPanic(t *testing.T) {
	tools := map[string]arc.ToolCallback{"boom": panicTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{DefaultTimeout: time.Second}, counter)

	msg, used := runOne(o, arc.ToolCall{ID: "c1", Name: "boom", Arguments: "{}"})
	if len(used) != 1 {
		t.Fatalf("toolsUsed = %v, want [boom] -- usage is recorded before invocation", used)
	}
	if msg.Content == "" {
		t.Error("panic must surface as an error tool message, not crash the batch")
	}
}

type denyApprovalStore struct{}

func (denyApprovalStore) RequestApproval(_ context.Context, _, _, _, _, _ string, _ time.Duration) (bool, string) {
	return false, "denied by policy"
}

func (denyApprovalStore) Respond(string, bool, string) {}

type requireApproval struct{}

func (requireApproval) RequiresApproval(string, map[string]any) bool { return true }

func TestOrchestratorApprovalGateRejectsDenied(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{
		ApprovalPolicy: requireApproval{},
		ApprovalStore:  denyApprovalStore{},
	}, counter)

	msg, used := runOne(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: denied approval must block execution", used)
	}
	if msg.Content == "" {
		t.Error("expected a rejection message when approval is denied")
	}
}

func TestOrchestratorApprovalRequiredButNoStoreConfigured(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{ApprovalPolicy: requireApproval{}}, counter)

	_, used := runOne(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: missing approval store must fail closed", used)
	}
}

func TestOrchestratorBeforeToolCallFailOnErrorAbortsRunWithHookRejected(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	hooks := NewHookExecutor(nil, []ToolHook{{
		Name: "strict", Order: 1, FailOnError: true,
		Before: func(context.Context, *arc.HookContext, arc.ToolCall) (HookOutcome, error) {
			return HookOutcome{}, fmt.Errorf("policy lookup failed")
		},
	}}, nil)
	o := NewOrchestrator(tools, OrchestratorConfig{Hooks: hooks}, counter)

	_, err, used := runOneErr(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if err == nil {
		t.Fatal("expected a FailOnError BeforeToolCall hook error to abort the run, got nil error")
	}
	if ClassifyError(err) != arc.ErrHookRejected {
		t.Errorf("ClassifyError(err) = %q, want %q", ClassifyError(err), arc.ErrHookRejected)
	}
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: the tool must never run once the run aborts", used)
	}
}

func TestOrchestratorBeforeToolCallDeliberateRejectContinuesRun(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	hooks := NewHookExecutor(nil, []ToolHook{{
		Name: "policy", Order: 1,
		Before: func(context.Context, *arc.HookContext, arc.ToolCall) (HookOutcome, error) {
			return HookOutcome{Kind: HookReject, Reason: "not allowed right now"}, nil
		},
	}}, nil)
	o := NewOrchestrator(tools, OrchestratorConfig{Hooks: hooks}, counter)

	msg, err, used := runOneErr(o, arc.ToolCall{ID: "c1", Name: "ok", Arguments: "{}"})
	if err != nil {
		t.Fatalf("a deliberate HookReject outcome must not abort the run, got err: %v", err)
	}
	if msg.Role != arc.RoleTool || msg.Content == "" {
		t.Errorf("expected a synthesized tool rejection message, got %+v", msg)
	}
	if len(used) != 0 {
		t.Errorf("toolsUsed = %v, want empty: a rejected tool call must never run", used)
	}
}

func TestOrchestratorExecuteBatchPropagatesCancellation(t *testing.T) {
	tools := map[string]arc.ToolCallback{"ok": okTool()}
	counter := newCounter(0)
	o := NewOrchestrator(tools, OrchestratorConfig{}, counter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var toolsUsed []string
	var mu sync.Mutex
	hctx := &arc.HookContext{RunID: "r1", Metadata: map[string]any{}}
	_, err := o.ExecuteBatch(ctx, hctx, []arc.ToolCall{{ID: "c1", Name: "ok", Arguments: "{}"}}, &toolsUsed, &mu)
	if err == nil || !IsCancellation(err) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}
}
