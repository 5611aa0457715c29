package engine

import (
	"context"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// OutputRejectCategory classifies why an output guard stage rejected content.
type OutputRejectCategory string

const (
	OutputCategoryPII       OutputRejectCategory = "PII_DETECTED"
	OutputCategoryHarmful   OutputRejectCategory = "HARMFUL_CONTENT"
	OutputCategoryPolicy    OutputRejectCategory = "POLICY_VIOLATION"
	OutputCategorySystem    OutputRejectCategory = "SYSTEM_ERROR"
)

// OutputOutcome is the tagged result of one output guard stage.
type OutputOutcome struct {
	Allowed  bool
	Content  string // populated when Modified
	Modified bool
	Reason   string
	Category OutputRejectCategory
	TooShort bool
}

// OutputGuard is one stage of the output guard pipeline.
type OutputGuard interface {
	Name() string
	Check(ctx context.Context, gctx arc.OutputGuardContext, content string) (OutputOutcome, error)
}

// OutputGuardPipeline runs ordered output guard stages. Modified content
// flows into the next stage; the pipeline fails closed on stage error.
type OutputGuardPipeline struct {
	stages []OutputGuard
}

// NewOutputGuardPipeline builds a pipeline over stages.
func NewOutputGuardPipeline(stages []OutputGuard) *OutputGuardPipeline {
	return &OutputGuardPipeline{stages: stages}
}

// Run executes the pipeline against content, returning the final outcome.
// An empty pipeline always allows the original content unchanged.
func (p *OutputGuardPipeline) Run(ctx context.Context, gctx arc.OutputGuardContext, content string) OutputOutcome {
	current := content
	for _, stage := range p.stages {
		outcome, err := p.runStage(ctx, stage, gctx, current)
		if err != nil {
			return outcome
		}
		if !outcome.Allowed {
			return outcome
		}
		if outcome.Modified {
			current = outcome.Content
		}
	}
	return OutputOutcome{Allowed: true, Content: current}
}

func (p *OutputGuardPipeline) runStage(ctx context.Context, stage OutputGuard, gctx arc.OutputGuardContext, content string) (outcome OutputOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutputOutcome{Allowed: false, Reason: "output guard stage panicked", Category: OutputCategorySystem}
		}
	}()
	outcome, err = stage.Check(ctx, gctx, content)
	if err != nil {
		if IsCancellation(err) {
			return OutputOutcome{}, err
		}
		return OutputOutcome{Allowed: false, Reason: err.Error(), Category: OutputCategorySystem}, nil
	}
	return outcome, nil
}
