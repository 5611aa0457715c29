package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	config := Config{MaxAttempts: 3, InitialDelay: time.Millisecond}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientModelErrorThenSucceeds(t *testing.T) {
	config := Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
		Jitter:       false,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("upstream 503")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return errors.New("provider always down")
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if result.Attempts != 3 || calls != 3 {
		t.Errorf("expected 3 attempts and calls, got attempts=%d calls=%d", result.Attempts, calls)
	}
}

func TestDo_StopsImmediatelyOnPermanentError(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: 1 * time.Millisecond}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return Permanent(errors.New("401 unauthorized"))
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("a permanent error must not be retried, got attempts=%d calls=%d", result.Attempts, calls)
	}
}

func TestDo_StopsOnContextCancellation(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, config, func() error {
		return errors.New("retry")
	})

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
}

func TestDo_JitterKeepsDelayWithinRange(t *testing.T) {
	config := Config{
		MaxAttempts:  2,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Factor:       1.0,
		Jitter:       true,
	}

	calls := 0
	start := time.Now()
	Do(context.Background(), config, func() error {
		calls++
		if calls == 1 {
			return errors.New("first attempt fails to force one sleep")
		}
		return nil
	})
	elapsed := time.Since(start)

	if elapsed < 8*time.Millisecond || elapsed > 40*time.Millisecond {
		t.Errorf("expected jittered delay within [0.5x, 1.5x] of 20ms, slept %v", elapsed)
	}
}

func TestPermanent_WrapsAndUnwraps(t *testing.T) {
	err := errors.New("provider rejected the request")
	perm := Permanent(err)

	if !IsPermanent(perm) {
		t.Error("expected IsPermanent to be true")
	}
	if !errors.Is(perm, err) {
		t.Error("expected the wrapped error to unwrap to the original")
	}
}

func TestPermanent_NilStaysNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should return nil")
	}
}

func TestIsPermanent_FalseForOrdinaryError(t *testing.T) {
	if IsPermanent(errors.New("temporary")) {
		t.Error("an ordinary error must not be reported as permanent")
	}
}
