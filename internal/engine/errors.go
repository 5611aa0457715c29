package engine

import (
	"context"
	"errors"

	"github.com/StarkFactory/arc-reactor-sub012/internal/infra"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// Sentinel errors for unconditional loop-termination conditions, in the
// teacher's errors.go style (internal/agent/errors.go): small, typed, and
// checked with errors.Is rather than string matching.
var (
	errInvalidResponse = errors.New("model produced empty content with no tool calls")
	errMaxIterations   = errors.New("exceeded maximum ReAct iterations")
)

// AgentError carries a classified AgentErrorKind alongside the underlying
// cause, mirroring the teacher's ToolError builder pattern.
type AgentError struct {
	Kind    arc.AgentErrorKind
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError builds an AgentError of the given kind wrapping cause.
func NewAgentError(kind arc.AgentErrorKind, message string, cause error) *AgentError {
	return &AgentError{Kind: kind, Message: message, Cause: cause}
}

// ClassifyError maps an arbitrary error from the LLM-call path onto an
// AgentErrorKind. Cancellation is never classified -- callers must check
// IsCancellation first and re-raise it unconditionally.
func ClassifyError(err error) arc.AgentErrorKind {
	if err == nil {
		return ""
	}
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	switch {
	case errors.Is(err, errInvalidResponse):
		return arc.ErrInvalidResponse
	case errors.Is(err, errMaxIterations):
		return arc.ErrInvalidResponse
	case errors.Is(err, infra.ErrCircuitOpen):
		return arc.ErrCircuitBreakerOpen
	case errors.Is(err, context.DeadlineExceeded):
		return arc.ErrTimeout
	default:
		return arc.ErrUnknown
	}
}
