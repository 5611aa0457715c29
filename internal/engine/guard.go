package engine

import (
	"context"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// RejectCategory classifies why an input guard stage rejected a command.
type RejectCategory string

const (
	CategoryRateLimited     RejectCategory = "RATE_LIMITED"
	CategoryInvalidInput    RejectCategory = "INVALID_INPUT"
	CategoryPromptInjection RejectCategory = "PROMPT_INJECTION"
	CategoryOffTopic        RejectCategory = "OFF_TOPIC"
	CategoryUnauthorized    RejectCategory = "UNAUTHORIZED"
	CategorySystemError     RejectCategory = "SYSTEM_ERROR"
)

// GuardDecision is the outcome of one input guard stage.
type GuardDecision struct {
	Allowed  bool
	Reason   string
	Category RejectCategory
	Stage    string
}

// InputGuard is one stage of the input guard pipeline.
type InputGuard interface {
	Name() string
	Check(ctx context.Context, cmd arc.GuardCommand) (GuardDecision, error)
}

// AuditPublisher receives every guard decision for audit purposes. Raw text
// is never passed here -- callers must hash it before publishing, per
// spec's "raw text is hashed, never stored" invariant.
type AuditPublisher interface {
	PublishGuardDecision(ctx context.Context, stage string, textHash string, decision GuardDecision)
}

// NopAuditPublisher discards every decision. Used when no audit sink is
// configured.
type NopAuditPublisher struct{}

func (NopAuditPublisher) PublishGuardDecision(context.Context, string, string, GuardDecision) {}

// InputGuardPipeline runs ordered, enabled-filtered input guard stages,
// stopping at the first rejection (fail-close on stage error too).
type InputGuardPipeline struct {
	stages  []InputGuard
	audit   AuditPublisher
	hashFn  func(string) string
}

// NewInputGuardPipeline builds a pipeline over stages, publishing every
// decision to audit via hashFn(text) so raw text never reaches the sink.
func NewInputGuardPipeline(stages []InputGuard, audit AuditPublisher, hashFn func(string) string) *InputGuardPipeline {
	if audit == nil {
		audit = NopAuditPublisher{}
	}
	if hashFn == nil {
		hashFn = sha256Hex
	}
	return &InputGuardPipeline{stages: stages, audit: audit, hashFn: hashFn}
}

// Run executes the pipeline. An empty pipeline always allows.
func (p *InputGuardPipeline) Run(ctx context.Context, cmd arc.GuardCommand) GuardDecision {
	hash := p.hashFn(cmd.Text)
	for _, stage := range p.stages {
		decision, err := p.runStage(ctx, stage, cmd)
		p.audit.PublishGuardDecision(ctx, stage.Name(), hash, decision)
		if err != nil || !decision.Allowed {
			return decision
		}
	}
	return GuardDecision{Allowed: true}
}

func (p *InputGuardPipeline) runStage(ctx context.Context, stage InputGuard, cmd arc.GuardCommand) (decision GuardDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			decision = GuardDecision{Allowed: false, Reason: "guard stage panicked", Category: CategorySystemError, Stage: stage.Name()}
		}
	}()
	decision, err = stage.Check(ctx, cmd)
	if err != nil {
		if IsCancellation(err) {
			return GuardDecision{}, err
		}
		return GuardDecision{Allowed: false, Reason: err.Error(), Category: CategorySystemError, Stage: stage.Name()}, nil
	}
	decision.Stage = stage.Name()
	return decision, nil
}
