package engine

import (
	"context"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// ChatResponse is the batch completion result from a ChatModel.
type ChatResponse struct {
	Content   string
	ToolCalls []arc.ToolCall
	Usage     *arc.TokenUsage
}

// ChatChunk is one element of a streamed completion.
type ChatChunk struct {
	Text      string
	ToolCall  *arc.ToolCall
	Done      bool
	Err       error
	Usage     *arc.TokenUsage
}

// CallOptions carries per-call tuning the engine derives from AgentCommand.
type CallOptions struct {
	Model          string
	Temperature    *float64
	MaxToolCalls   int
	Tools          []arc.ToolCallback
	ResponseFormat arc.ResponseFormat
}

// ChatModel is the external collaborator the engine drives through the
// ReAct loop. Implementations talk to a specific LLM provider; the engine
// never assumes which.
type ChatModel interface {
	Name() string
	Call(ctx context.Context, system string, messages []arc.Message, opts CallOptions) (ChatResponse, error)
	Stream(ctx context.Context, system string, messages []arc.Message, opts CallOptions) (<-chan ChatChunk, error)
}
