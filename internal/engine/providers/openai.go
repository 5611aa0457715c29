package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/StarkFactory/arc-reactor-sub012/internal/engine"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// OpenAIConfig configures an OpenAIModel, grounded on the teacher's
// providers.OpenAIProvider constructor (bare API key, optional base URL for
// the Azure/OpenRouter/Ollama/Copilot-proxy variants the teacher split into
// separate files -- here unified into one client configuration, since they
// differ only in base URL and API key source, not in wire format).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIModel adapts the Chat Completions API to engine.ChatModel.
type OpenAIModel struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIModel builds an OpenAIModel from cfg.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(config), defaultModel: defaultModel}, nil
}

func (m *OpenAIModel) Name() string { return "openai" }

func (m *OpenAIModel) model(requested string) string {
	if requested == "" {
		return m.defaultModel
	}
	return requested
}

// Call issues a single non-streaming completion.
func (m *OpenAIModel) Call(ctx context.Context, system string, messages []arc.Message, opts engine.CallOptions) (engine.ChatResponse, error) {
	req := m.buildRequest(system, messages, opts)
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return engine.ChatResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return engine.ChatResponse{}, errors.New("openai: empty choices in response")
	}
	choice := resp.Choices[0].Message
	out := engine.ChatResponse{
		Content: choice.Content,
		Usage:   &arc.TokenUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, arc.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

// Stream issues a streaming completion, accumulating per-index tool call
// fragments across chunks the way the teacher's processStream does.
func (m *OpenAIModel) Stream(ctx context.Context, system string, messages []arc.Message, opts engine.CallOptions) (<-chan engine.ChatChunk, error) {
	req := m.buildRequest(system, messages, opts)
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := make(chan engine.ChatChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		type building struct {
			id, name string
			args     string
		}
		toolCalls := make(map[int]*building)

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					for _, tc := range toolCalls {
						if tc.id != "" && tc.name != "" {
							out <- engine.ChatChunk{ToolCall: &arc.ToolCall{ID: tc.id, Name: tc.name, Arguments: tc.args}}
						}
					}
					out <- engine.ChatChunk{Done: true}
					return
				}
				out <- engine.ChatChunk{Err: fmt.Errorf("openai: %w", err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- engine.ChatChunk{Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				b, ok := toolCalls[index]
				if !ok {
					b = &building{}
					toolCalls[index] = b
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				b.args += tc.Function.Arguments
			}
			if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
				for _, tc := range toolCalls {
					if tc.id != "" && tc.name != "" {
						out <- engine.ChatChunk{ToolCall: &arc.ToolCall{ID: tc.id, Name: tc.name, Arguments: tc.args}}
					}
				}
				toolCalls = make(map[int]*building)
			}
		}
	}()
	return out, nil
}

func (m *OpenAIModel) buildRequest(system string, messages []arc.Message, opts engine.CallOptions) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		converted = append(converted, m.convertMessage(msg))
	}

	req := openai.ChatCompletionRequest{Model: m.model(opts.Model), Messages: converted}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if len(opts.Tools) > 0 {
		req.Tools = m.convertTools(opts.Tools)
	}
	return req
}

func (m *OpenAIModel) convertMessage(msg arc.Message) openai.ChatCompletionMessage {
	switch msg.Role {
	case arc.RoleTool:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: msg.Content, ToolCallID: msg.ToolCallID}
	case arc.RoleAssistant:
		oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oaiMsg
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}
	}
}

func (m *OpenAIModel) convertTools(tools []arc.ToolCallback) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}
