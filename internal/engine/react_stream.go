package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// StreamEvent is one element of the engine's streamed output: text, a
// sentinel marker, or a terminal error.
type StreamEvent struct {
	Text  string // may itself be a marker chunk; consumers call arc.ParseMarker
	Error error
}

// RunStreamResult is the terminal accounting for a streaming run.
// ToolHistory holds the assistant/tool message pairs produced by every
// intermediate round, which the caller must splice into persisted history
// between the user message and FinalContent's assistant message.
type RunStreamResult struct {
	FinalContent string
	ToolsUsed    []string
	ToolHistory  []arc.Message
	Usage        *arc.TokenUsage // always nil: streaming does not compute token usage (spec §4.13 known gap)
}

// RunStream drives the same outer state machine as RunBatch, but the LLM
// call yields structured chunks: text is forwarded immediately, tool-call
// chunks are buffered until the round ends, then executed with tool_start/
// tool_end markers emitted around each round's batch.
func (e *ReActEngine) RunStream(ctx context.Context, hctx *arc.HookContext, cmd *arc.AgentCommand, hooks *HookExecutor, out chan<- StreamEvent) (RunStreamResult, error) {
	defer close(out)

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

	forceNoTools := false
	maxRounds := maxToolCalls + 1
	var lastContent string

	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return RunStreamResult{}, err
		}

		tools := e.config.Tools
		if forceNoTools || round == maxRounds-1 {
			tools = nil
		}

		chunks, err := e.streamLLM(ctx, cmd, history, tools)
		if err != nil {
			emit(out, StreamEvent{Error: err})
			return RunStreamResult{}, err
		}

		var text string
		var toolCalls []arc.ToolCall
		for chunk := range chunks {
			if chunk.Err != nil {
				emit(out, StreamEvent{Error: chunk.Err})
				return RunStreamResult{}, chunk.Err
			}
			if chunk.Text != "" {
				text += chunk.Text
				emit(out, StreamEvent{Text: chunk.Text})
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}
		lastContent = text

		if len(toolCalls) == 0 {
			if text == "" {
				return RunStreamResult{}, errInvalidResponse
			}
			return RunStreamResult{FinalContent: lastContent, ToolsUsed: toolsUsedAcc, ToolHistory: history[baseLen:]}, nil
		}

		if atomic.LoadInt64(&totalToolCalls) >= int64(maxToolCalls) {
			// Budget already exhausted: force one more tool-free round
			// instead of executing these calls, matching the batch engine.
			forceNoTools = true
			continue
		}

		assistantMsg := arc.Message{Role: arc.RoleAssistant, Content: text, ToolCalls: toolCalls, Timestamp: time.Now()}
		history = append(history, assistantMsg)

		for _, tc := range toolCalls {
			emit(out, StreamEvent{Text: arc.ToolStartMarker(tc.Name)})
		}
		toolMsgs, toolErr := orch.ExecuteBatch(ctx, hctx, toolCalls, &toolsUsedAcc, &toolsUsedMu)
		for i, tc := range toolCalls {
			_ = toolMsgs[i]
			emit(out, StreamEvent{Text: arc.ToolEndMarker(tc.Name)})
		}
		if toolErr != nil {
			emit(out, StreamEvent{Error: toolErr})
			return RunStreamResult{}, toolErr
		}
		history = append(history, toolMsgs...)
	}

	return RunStreamResult{}, errMaxIterations
}

func emit(out chan<- StreamEvent, ev StreamEvent) {
	out <- ev
}

func (e *ReActEngine) streamLLM(ctx context.Context, cmd *arc.AgentCommand, history []arc.Message, tools map[string]arc.ToolCallback) (<-chan ChatChunk, error) {
	opts := CallOptions{Model: cmd.Model, Temperature: cmd.Temperature, MaxToolCalls: cmd.MaxToolCalls, ResponseFormat: cmd.ResponseFormat}
	if len(tools) > 0 {
		opts.Tools = make([]arc.ToolCallback, 0, len(tools))
		for _, t := range tools {
			opts.Tools = append(opts.Tools, t)
		}
	}
	return e.config.Model.Stream(ctx, cmd.SystemPrompt, history, opts)
}
