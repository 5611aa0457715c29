package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/StarkFactory/arc-reactor-sub012/internal/ratelimit"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// RateLimitGuard enforces a per-user token bucket ahead of every other input
// guard stage, adapted from the teacher's ratelimit.Limiter (keyed bucket
// map with lazy pruning) rather than reimplemented from scratch.
type RateLimitGuard struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitGuard builds a guard keyed by GuardCommand.UserID over the
// given limiter configuration.
func NewRateLimitGuard(config ratelimit.Config) *RateLimitGuard {
	return &RateLimitGuard{limiter: ratelimit.NewLimiter(config)}
}

func (g *RateLimitGuard) Name() string { return "rate-limit" }

func (g *RateLimitGuard) Check(_ context.Context, cmd arc.GuardCommand) (GuardDecision, error) {
	key := cmd.UserID
	if key == "" {
		key = cmd.Channel
	}
	if g.limiter.Allow(key) {
		return GuardDecision{Allowed: true}, nil
	}
	wait := g.limiter.WaitTime(key)
	return GuardDecision{
		Allowed:  false,
		Reason:   fmt.Sprintf("rate limit exceeded, retry in %s", wait),
		Category: CategoryRateLimited,
	}, nil
}

// PromptInjectionGuard rejects input matching common instruction-override
// phrasing. A minimal, deterministic stand-in for a real classifier --
// concrete detection logic belongs to the external policy layer this engine
// treats as a collaborator.
type PromptInjectionGuard struct {
	patterns []*regexp.Regexp
}

// NewPromptInjectionGuard builds a guard over the default phrase set.
func NewPromptInjectionGuard() *PromptInjectionGuard {
	return &PromptInjectionGuard{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore all previous instructions`),
		regexp.MustCompile(`(?i)disregard (the|your) (system|prior) prompt`),
	}}
}

func (g *PromptInjectionGuard) Name() string { return "prompt-injection" }

func (g *PromptInjectionGuard) Check(_ context.Context, cmd arc.GuardCommand) (GuardDecision, error) {
	for _, p := range g.patterns {
		if p.MatchString(cmd.Text) {
			return GuardDecision{Allowed: false, Reason: "prompt injection pattern matched", Category: CategoryPromptInjection}, nil
		}
	}
	return GuardDecision{Allowed: true}, nil
}

// PIIMaskOutputGuard masks common PII patterns (phone numbers) in model
// output, returning Modified rather than Rejected.
type PIIMaskOutputGuard struct {
	phone *regexp.Regexp
}

// NewPIIMaskOutputGuard builds the default phone-number masking stage.
func NewPIIMaskOutputGuard() *PIIMaskOutputGuard {
	return &PIIMaskOutputGuard{phone: regexp.MustCompile(`\d{2,3}-\d{3,4}-\d{4}`)}
}

func (g *PIIMaskOutputGuard) Name() string { return "pii-mask" }

func (g *PIIMaskOutputGuard) Check(_ context.Context, _ arc.OutputGuardContext, content string) (OutputOutcome, error) {
	if !g.phone.MatchString(content) {
		return OutputOutcome{Allowed: true, Content: content}, nil
	}
	masked := g.phone.ReplaceAllStringFunc(content, func(m string) string {
		return strings.Repeat("*", len(m))
	})
	return OutputOutcome{Allowed: true, Modified: true, Content: masked, Reason: "phone number masked"}, nil
}

// MinLengthOutputGuard enforces a minimum output length, distinct from an
// OUTPUT_GUARD_REJECTED outcome per spec's OUTPUT_TOO_SHORT boundary case.
type MinLengthOutputGuard struct {
	MinChars int
}

func (g *MinLengthOutputGuard) Name() string { return "min-length" }

func (g *MinLengthOutputGuard) Check(_ context.Context, _ arc.OutputGuardContext, content string) (OutputOutcome, error) {
	if len(strings.TrimSpace(content)) < g.MinChars {
		return OutputOutcome{Allowed: false, TooShort: true, Reason: "output below minimum length"}, nil
	}
	return OutputOutcome{Allowed: true, Content: content}, nil
}
