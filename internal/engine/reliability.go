package engine

import (
	"context"
	"errors"

	"github.com/StarkFactory/arc-reactor-sub012/internal/infra"
	"github.com/StarkFactory/arc-reactor-sub012/internal/retry"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// ErrCircuitBreakerOpen is returned when the breaker protecting a ChatModel
// is open; callers classify this into arc.ErrCircuitBreakerOpen.
var ErrCircuitBreakerOpen = infra.ErrCircuitOpen

// ReliableModel wraps a primary ChatModel with retry + circuit breaker
// around the call that creates the request, and a list of fallback models
// tried on terminal failure. Matches spec §4.8/§4.9: retry/breaker wrap the
// call itself, never stream consumption; fallback models are tried
// single-shot (no tools, no ReAct) only after retry+breaker are exhausted.
type ReliableModel struct {
	primary   ChatModel
	retryCfg  retry.Config
	breaker   *infra.CircuitBreaker
	fallbacks []ChatModel
}

// NewReliableModel builds a ReliableModel. breaker may be nil, in which case
// no breaker gating is applied (useful for tests); production callers should
// obtain one from a shared infra.CircuitBreakerRegistry keyed by model name.
func NewReliableModel(primary ChatModel, retryCfg retry.Config, breaker *infra.CircuitBreaker, fallbacks []ChatModel) *ReliableModel {
	return &ReliableModel{primary: primary, retryCfg: retryCfg, breaker: breaker, fallbacks: fallbacks}
}

// Call executes the primary model's Call under retry + breaker; cancellation
// is detected inside the retried function and surfaced without being
// recorded as a breaker failure. On exhaustion it tries fallback models in
// order, returning the first success; if all are exhausted it propagates the
// original error.
func (r *ReliableModel) Call(ctx context.Context, system string, messages []arc.Message, opts CallOptions) (ChatResponse, error) {
	resp, err := r.callWithRetry(ctx, system, messages, opts)
	if err == nil {
		return resp, nil
	}
	if IsCancellation(err) {
		return ChatResponse{}, err
	}

	for _, fb := range r.fallbacks {
		fbResp, fbErr := fb.Call(ctx, system, messages, CallOptions{Model: opts.Model, Temperature: opts.Temperature})
		if fbErr == nil && fbResp.Content != "" {
			return fbResp, nil
		}
	}
	return ChatResponse{}, err
}

// Stream executes the primary model's Stream under the circuit breaker
// only; retry does not wrap stream consumption per spec's documented gap
// (§9 open question: "mid-stream failures are not retryable").
func (r *ReliableModel) Stream(ctx context.Context, system string, messages []arc.Message, opts CallOptions) (<-chan ChatChunk, error) {
	if r.breaker == nil {
		return r.primary.Stream(ctx, system, messages, opts)
	}
	var cancelErr error
	ch, err := infra.ExecuteWithResult(r.breaker, ctx, func(ctx context.Context) (<-chan ChatChunk, error) {
		ch, err := r.primary.Stream(ctx, system, messages, opts)
		if err != nil && IsCancellation(err) {
			// Cancellation must not count as a breaker failure: report a
			// nil error to the breaker, then re-surface the real error to
			// the caller below via cancelErr.
			cancelErr = err
			return nil, nil
		}
		return ch, err
	})
	if cancelErr != nil {
		return nil, cancelErr
	}
	return ch, err
}

func (r *ReliableModel) callWithRetry(ctx context.Context, system string, messages []arc.Message, opts CallOptions) (ChatResponse, error) {
	var cancelErr error

	run := func(ctx context.Context) (ChatResponse, error) {
		var resp ChatResponse
		result := retry.Do(ctx, r.retryCfg, func() error {
			out, err := r.primary.Call(ctx, system, messages, opts)
			if err != nil {
				if IsCancellation(err) {
					return retry.Permanent(err)
				}
				return err
			}
			resp = out
			return nil
		})
		if result.Err != nil && IsCancellation(result.Err) {
			// Reported to the breaker as a nil error so cancellation is
			// never counted as a circuit failure; cancelErr carries the
			// real error back out to the caller below.
			cancelErr = result.Err
			return ChatResponse{}, nil
		}
		return resp, result.Err
	}

	var (
		resp ChatResponse
		err  error
	)
	if r.breaker == nil {
		resp, err = run(ctx)
	} else {
		resp, err = infra.ExecuteWithResult(r.breaker, ctx, run)
	}
	if cancelErr != nil {
		return ChatResponse{}, cancelErr
	}
	return resp, err
}
