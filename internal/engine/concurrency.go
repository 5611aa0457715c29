package engine

import (
	"context"
	"errors"
	"time"
)

// Permit is a bounded concurrency slot. Release must be called exactly once.
type Permit struct {
	release func()
}

// Release returns the permit to its semaphore.
func (p Permit) Release() {
	if p.release != nil {
		p.release()
	}
}

// Semaphore bounds the number of concurrent runs, mirroring the buffered
// channel pattern used throughout the teacher's executor for per-tool
// concurrency limiting.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore constructs a semaphore with the given capacity. A
// non-positive max is treated as unbounded.
func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		return &Semaphore{}
	}
	return &Semaphore{slots: make(chan struct{}, max)}
}

// Acquire blocks until a permit is available or ctx is cancelled. A nil
// slots channel means the semaphore is unbounded and acquisition never
// blocks.
func (s *Semaphore) Acquire(ctx context.Context) (Permit, error) {
	if s.slots == nil {
		return Permit{}, nil
	}
	select {
	case s.slots <- struct{}{}:
		return Permit{release: func() { <-s.slots }}, nil
	case <-ctx.Done():
		return Permit{}, ctx.Err()
	}
}

// WithDeadline wraps ctx with a deadline of ms milliseconds from now. A
// non-positive ms disables the deadline (returns ctx unchanged with a no-op
// cancel).
func WithDeadline(ctx context.Context, ms int64) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}

// IsCancellation reports whether err represents context cancellation or
// deadline expiry rather than an ordinary failure. Every recover/classify
// site must check this first and re-raise cancellation unconditionally
// instead of reporting it as a run or tool failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
