package engine

import "github.com/StarkFactory/arc-reactor-sub012/pkg/arc"

// ErrorMessageResolver maps an AgentErrorKind to caller-facing text,
// grounded on the teacher's errors.go user-facing-message convention
// (distinct from the internal Cause chain, which stays in logs only).
type ErrorMessageResolver interface {
	Resolve(kind arc.AgentErrorKind) string
}

var defaultErrorMessages = map[arc.AgentErrorKind]string{
	arc.ErrRateLimited:        "The service is temporarily rate limited. Please try again shortly.",
	arc.ErrTimeout:            "The request timed out before a response was produced.",
	arc.ErrContextTooLong:     "The conversation is too long to process; some history was dropped.",
	arc.ErrToolError:          "A tool call failed while handling the request.",
	arc.ErrGuardRejected:      "The request was rejected by an input policy.",
	arc.ErrHookRejected:       "The request was rejected before it could be processed.",
	arc.ErrInvalidResponse:    "The model did not produce a usable response.",
	arc.ErrOutputGuardReject:  "The response was withheld by an output policy.",
	arc.ErrOutputTooShort:     "The response was too short to return.",
	arc.ErrCircuitBreakerOpen: "The underlying model is temporarily unavailable.",
	arc.ErrUnknown:            "An unexpected error occurred.",
}

// DefaultErrorMessageResolver returns the built-in English messages (spec
// §6). Unknown kinds fall back to the ErrUnknown message.
type DefaultErrorMessageResolver struct{}

func (DefaultErrorMessageResolver) Resolve(kind arc.AgentErrorKind) string {
	if msg, ok := defaultErrorMessages[kind]; ok {
		return msg
	}
	return defaultErrorMessages[arc.ErrUnknown]
}
