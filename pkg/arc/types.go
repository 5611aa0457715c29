// Package arc defines the data model that crosses the Agent Execution
// Engine's boundary: commands in, results (or streamed events) out.
package arc

import (
	"time"
)

// Mode selects how a command is driven through the engine.
type Mode string

const (
	ModeStandard  Mode = "STANDARD"
	ModeReAct     Mode = "REACT"
	ModeStreaming Mode = "STREAMING"
)

// ResponseFormat constrains how the final assistant content is shaped.
type ResponseFormat string

const (
	FormatText ResponseFormat = "TEXT"
	FormatJSON ResponseFormat = "JSON"
	FormatYAML ResponseFormat = "YAML"
)

// MediaAttachment carries either inline data or a URI, never both.
type MediaAttachment struct {
	MimeType string
	Data     []byte
	URI      string
}

// Valid reports whether the attachment carries exactly one payload kind.
func (m MediaAttachment) Valid() bool {
	return (len(m.Data) > 0) != (m.URI != "")
}

// Role identifies a Message's author.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleTool      Role = "TOOL"
)

// ToolCall is an LLM's request to invoke a named tool with arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON, parsed by the Tool Argument Codec
}

// Message is one turn of conversation history.
type Message struct {
	Role       Role
	Content    string
	Timestamp  time.Time
	Media      []MediaAttachment
	ToolCalls  []ToolCall // only meaningful on RoleAssistant messages
	ToolCallID string     // only meaningful on RoleTool messages
}

// HasToolCalls reports whether this is an assistant message awaiting tool
// results.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// AgentCommand is the immutable input to one engine run.
type AgentCommand struct {
	SystemPrompt       string
	UserPrompt         string
	Mode               Mode
	Model              string
	ConversationHistory []Message
	Temperature        *float64
	MaxToolCalls       int
	UserID             string
	Metadata           map[string]any
	ResponseFormat     ResponseFormat
	ResponseSchema     string
	Media              []MediaAttachment
}

// Well-known Metadata keys.
const (
	MetaSessionID = "sessionId"
	MetaTenantID  = "tenantId"
	MetaChannel   = "channel"
	MetaAgentName = "agentName"
	MetaRAGFilter = "ragFilters"
)

// AgentErrorKind classifies a failed run.
type AgentErrorKind string

const (
	ErrRateLimited        AgentErrorKind = "RATE_LIMITED"
	ErrTimeout            AgentErrorKind = "TIMEOUT"
	ErrContextTooLong     AgentErrorKind = "CONTEXT_TOO_LONG"
	ErrToolError          AgentErrorKind = "TOOL_ERROR"
	ErrGuardRejected      AgentErrorKind = "GUARD_REJECTED"
	ErrHookRejected       AgentErrorKind = "HOOK_REJECTED"
	ErrInvalidResponse    AgentErrorKind = "INVALID_RESPONSE"
	ErrOutputGuardReject  AgentErrorKind = "OUTPUT_GUARD_REJECTED"
	ErrOutputTooShort     AgentErrorKind = "OUTPUT_TOO_SHORT"
	ErrCircuitBreakerOpen AgentErrorKind = "CIRCUIT_BREAKER_OPEN"
	ErrUnknown            AgentErrorKind = "UNKNOWN"
)

// TokenUsage reports input/output token counts when known.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// AgentResult is the sole observable outcome of a batch run.
type AgentResult struct {
	Success      bool
	Content      string
	ErrorCode    AgentErrorKind
	ErrorMessage string
	ToolsUsed    []string
	TokenUsage   *TokenUsage
	DurationMs   int64
	Metadata     map[string]any
}

// HookContext is the mutable, per-run context passed to hooks.
type HookContext struct {
	RunID          string
	UserID         string
	SystemPrompt   string
	UserPrompt     string
	StartedAtNanos int64
	Metadata       map[string]any
}

// DurationMs derives elapsed run time from StartedAtNanos.
func (h *HookContext) DurationMs(nowNanos int64) int64 {
	return (nowNanos - h.StartedAtNanos) / int64(time.Millisecond)
}

// GuardCommand is the minimum an input guard stage needs to see.
type GuardCommand struct {
	Text     string
	UserID   string
	Channel  string
	Metadata map[string]any
}

// OutputGuardContext is the minimum an output guard stage needs to see.
type OutputGuardContext struct {
	Command    *AgentCommand
	ToolsUsed  []string
	DurationMs int64
}

// ToolCallback is the capability an external ToolRegistry exposes to the
// engine for a single tool. The engine borrows it for the duration of one
// run; it does not own its lifecycle.
type ToolCallback struct {
	Name        string
	Description string
	InputSchema string // JSON Schema
	TimeoutMs   int64  // 0 => engine default
	Invoke      func(arguments map[string]any) (string, error)
}
