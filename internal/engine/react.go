package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// ReActConfig configures one ReAct engine run.
type ReActConfig struct {
	Model        ChatModel
	Tools        map[string]arc.ToolCallback
	Orchestrator OrchestratorConfig
}

// ReActEngine drives the bounded tool-calling state machine described in
// spec §4.12 (batch) and §4.13 (streaming): CallLLM -> EvaluateResponse ->
// (TerminalAnswer | ExecuteTools) -> CallLLM ..., bounded to maxToolCalls+1
// LLM rounds.
type ReActEngine struct {
	config ReActConfig
}

// NewReActEngine builds an engine over the given configuration.
func NewReActEngine(config ReActConfig) *ReActEngine {
	return &ReActEngine{config: config}
}

// RunBatch drives the loop to completion and returns the final content,
// accumulated tool names used (one entry per executed call, duplicates kept),
// token usage when known,
// and the assistant/tool message pairs produced by every intermediate round
// (empty when the first round already terminates). Callers that persist
// conversation history must append toolHistory between the user message and
// the final assistant message, or a resumed conversation loses the tool
// call/result pairs the model saw when it produced that answer.
func (e *ReActEngine) RunBatch(ctx context.Context, hctx *arc.HookContext, cmd *arc.AgentCommand, hooks *HookExecutor) (content string, toolsUsed []string, usage *arc.TokenUsage, toolHistory []arc.Message, err error) {
	history := append([]arc.Message(nil), cmd.ConversationHistory...)
	baseLen := len(history)
	maxToolCalls := cmd.MaxToolCalls

	var totalToolCalls int64
	orchConfig := e.config.Orchestrator
	orchConfig.MaxToolCalls = maxToolCalls
	orchConfig.Hooks = hooks
	orch := NewOrchestrator(e.config.Tools, orchConfig, &totalToolCalls)

	var toolsUsedAcc []string
	var toolsUsedMu sync.Mutex

	// Bounded by maxToolCalls+1 LLM rounds (spec §4.12/§8): maxToolCalls=0
	// yields exactly one round with no tools offered at all.
	forceNoTools := false
	maxRounds := maxToolCalls + 1

	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", toolsUsedAcc, nil, nil, err
		}

		tools := e.config.Tools
		if forceNoTools || round == maxRounds-1 {
			tools = nil
		}

		resp, callErr := e.callLLM(ctx, cmd, history, tools)
		if callErr != nil {
			return "", toolsUsedAcc, nil, nil, callErr
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				return "", toolsUsedAcc, resp.Usage, nil, errInvalidResponse
			}
			return resp.Content, toolsUsedAcc, resp.Usage, history[baseLen:], nil
		}

		if atomic.LoadInt64(&totalToolCalls) >= int64(maxToolCalls) {
			// Budget already exhausted: force one more tool-free round
			// instead of executing these calls, guaranteeing termination
			// per spec §4.12.
			forceNoTools = true
			continue
		}

		assistantMsg := arc.Message{Role: arc.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls, Timestamp: time.Now()}
		history = append(history, assistantMsg)

		orchCtx, orchSpan := startSpan(ctx, "tool_orchestrator")
		toolMsgs, toolErr := orch.ExecuteBatch(orchCtx, hctx, resp.ToolCalls, &toolsUsedAcc, &toolsUsedMu)
		orchSpan.End()
		if toolErr != nil {
			return "", toolsUsedAcc, nil, nil, toolErr
		}
		history = append(history, toolMsgs...)
	}

	return "", toolsUsedAcc, nil, nil, errMaxIterations
}

func (e *ReActEngine) callLLM(ctx context.Context, cmd *arc.AgentCommand, history []arc.Message, tools map[string]arc.ToolCallback) (ChatResponse, error) {
	ctx, span := startSpan(ctx, "llm_call")
	defer span.End()

	opts := CallOptions{Model: cmd.Model, Temperature: cmd.Temperature, MaxToolCalls: cmd.MaxToolCalls, ResponseFormat: cmd.ResponseFormat}
	if len(tools) > 0 {
		opts.Tools = make([]arc.ToolCallback, 0, len(tools))
		for _, t := range tools {
			opts.Tools = append(opts.Tools, t)
		}
	}
	return e.config.Model.Call(ctx, cmd.SystemPrompt, history, opts)
}
