package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/StarkFactory/arc-reactor-sub012/internal/infra"
	"github.com/StarkFactory/arc-reactor-sub012/internal/retry"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

type scriptedModel struct {
	name      string
	responses []ChatResponse
	errs      []error
	calls     int
}

func (m *scriptedModel) Name() string { return m.name }

func (m *scriptedModel) Call(context.Context, string, []arc.Message, CallOptions) (ChatResponse, error) {
	i := m.calls
	m.calls++
	if i >= len(m.errs) {
		i = len(m.errs) - 1
	}
	var resp ChatResponse
	if i < len(m.responses) {
		resp = m.responses[i]
	}
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return resp, err
}

func (m *scriptedModel) Stream(context.Context, string, []arc.Message, CallOptions) (<-chan ChatChunk, error) {
	return nil, errors.New("not used")
}

func noBackoffConfig(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}
}

func TestReliableModelRetriesThenSucceeds(t *testing.T) {
	primary := &scriptedModel{
		name:      "primary",
		responses: []ChatResponse{{}, {}, {Content: "ok"}},
		errs:      []error{errors.New("transient"), errors.New("transient"), nil},
	}
	rm := NewReliableModel(primary, noBackoffConfig(5), nil, nil)

	resp, err := rm.Call(context.Background(), "sys", nil, CallOptions{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want %q", resp.Content, "ok")
	}
	if primary.calls != 3 {
		t.Errorf("primary called %d times, want 3", primary.calls)
	}
}

func TestReliableModelFallsBackOnExhaustion(t *testing.T) {
	primary := &scriptedModel{name: "primary", errs: []error{errors.New("down"), errors.New("down")}}
	fallback := &scriptedModel{name: "fallback", responses: []ChatResponse{{Content: "from fallback"}}, errs: []error{nil}}
	rm := NewReliableModel(primary, noBackoffConfig(2), nil, []ChatModel{fallback})

	resp, err := rm.Call(context.Background(), "sys", nil, CallOptions{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("Content = %q, want fallback content", resp.Content)
	}
}

func TestReliableModelPropagatesErrorWhenFallbacksExhausted(t *testing.T) {
	primary := &scriptedModel{name: "primary", errs: []error{errors.New("down"), errors.New("down")}}
	fallback := &scriptedModel{name: "fallback", errs: []error{errors.New("also down")}}
	rm := NewReliableModel(primary, noBackoffConfig(2), nil, []ChatModel{fallback})

	_, err := rm.Call(context.Background(), "sys", nil, CallOptions{})
	if err == nil {
		t.Fatal("expected an error when primary and all fallbacks fail")
	}
}

func TestReliableModelCancellationSkipsFallbackAndBreaker(t *testing.T) {
	breaker := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 1})
	primary := &scriptedModel{name: "primary", errs: []error{context.Canceled}}
	fallback := &scriptedModel{name: "fallback", responses: []ChatResponse{{Content: "should not be used"}}, errs: []error{nil}}
	rm := NewReliableModel(primary, noBackoffConfig(3), breaker, []ChatModel{fallback})

	_, err := rm.Call(context.Background(), "sys", nil, CallOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fallback.calls != 0 {
		t.Error("a cancelled primary call must not fall through to fallback models")
	}
	if breaker.State() != infra.CircuitClosed {
		t.Errorf("breaker state = %q, want %q: cancellation must not be recorded as a failure", breaker.State(), infra.CircuitClosed)
	}
}
