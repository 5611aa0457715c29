// Package providers adapts concrete LLM SDKs to the engine.ChatModel
// boundary, grounded on internal/agent/providers' per-vendor conversion
// logic but narrowed to the subset the engine actually drives (batch Call +
// Stream, no computer-use/beta surface).
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/StarkFactory/arc-reactor-sub012/internal/engine"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// AnthropicConfig configures an AnthropicModel, grounded on the teacher's
// providers.AnthropicConfig.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// AnthropicModel adapts the Anthropic Messages API to engine.ChatModel.
type AnthropicModel struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropicModel builds an AnthropicModel from cfg.
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicModel{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
		maxTokens:    int64(maxTokens),
	}, nil
}

func (m *AnthropicModel) Name() string { return "anthropic" }

func (m *AnthropicModel) model(requested string) anthropic.Model {
	if requested == "" {
		return anthropic.Model(m.defaultModel)
	}
	return anthropic.Model(requested)
}

// Call issues a single non-streaming completion.
func (m *AnthropicModel) Call(ctx context.Context, system string, messages []arc.Message, opts engine.CallOptions) (engine.ChatResponse, error) {
	params, err := m.buildParams(system, messages, opts)
	if err != nil {
		return engine.ChatResponse{}, err
	}
	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return engine.ChatResponse{}, fmt.Errorf("anthropic: %w", err)
	}

	var resp engine.ChatResponse
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			input, _ := json.Marshal(tu.Input)
			resp.ToolCalls = append(resp.ToolCalls, arc.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: string(input)})
		}
	}
	resp.Usage = &arc.TokenUsage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
	return resp, nil
}

// Stream issues a streaming completion, forwarding text deltas immediately
// and emitting one ChatChunk per completed tool call, mirroring the
// teacher's processStream accumulation.
func (m *AnthropicModel) Stream(ctx context.Context, system string, messages []arc.Message, opts engine.CallOptions) (<-chan engine.ChatChunk, error) {
	params, err := m.buildParams(system, messages, opts)
	if err != nil {
		return nil, err
	}
	stream := m.client.Messages.NewStreaming(ctx, params)

	out := make(chan engine.ChatChunk)
	go func() {
		defer close(out)
		var currentTool *arc.ToolCall
		var currentInput strings.Builder
		var usage arc.TokenUsage

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				usage.InputTokens = int(ms.Message.Usage.InputTokens)
			case "content_block_start":
				cb := event.AsContentBlockStart().ContentBlock
				if cb.Type == "tool_use" {
					tu := cb.AsToolUse()
					currentTool = &arc.ToolCall{ID: tu.ID, Name: tu.Name}
					currentInput.Reset()
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- engine.ChatChunk{Text: delta.Text}
					}
				case "input_json_delta":
					currentInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if currentTool != nil {
					currentTool.Arguments = currentInput.String()
					out <- engine.ChatChunk{ToolCall: currentTool}
					currentTool = nil
				}
			case "message_delta":
				md := event.AsMessageDelta()
				usage.OutputTokens = int(md.Usage.OutputTokens)
			case "message_stop":
				out <- engine.ChatChunk{Done: true, Usage: &usage}
				return
			}
		}
		if err := stream.Err(); err != nil {
			out <- engine.ChatChunk{Err: fmt.Errorf("anthropic: %w", err)}
		}
	}()
	return out, nil
}

func (m *AnthropicModel) buildParams(system string, messages []arc.Message, opts engine.CallOptions) (anthropic.MessageNewParams, error) {
	msgs, err := m.convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     m.model(opts.Model),
		Messages:  msgs,
		MaxTokens: m.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if len(opts.Tools) > 0 {
		tools, err := m.convertTools(opts.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func (m *AnthropicModel) convertMessages(messages []arc.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == arc.RoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == arc.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				return nil, fmt.Errorf("anthropic: invalid tool call arguments for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == arc.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func (m *AnthropicModel) convertTools(tools []arc.ToolCallback) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, toolParam)
	}
	return result, nil
}
