package engine

import (
	"context"
	"testing"
	"time"
)

func TestMemoryApprovalStoreApprovedUnblocksRequester(t *testing.T) {
	s := NewMemoryApprovalStore()
	done := make(chan struct{})
	var approved bool
	var reason string
	go func() {
		approved, reason = s.RequestApproval(context.Background(), "req-1", "run-1", "user-1", "danger", "{}", time.Second)
		close(done)
	}()

	// Give RequestApproval a moment to register itself before responding.
	time.Sleep(10 * time.Millisecond)
	s.Respond("req-1", true, "looks fine")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not unblock after Respond")
	}
	if !approved || reason != "looks fine" {
		t.Errorf("got (%v, %q), want (true, %q)", approved, reason, "looks fine")
	}
}

func TestMemoryApprovalStoreTimeoutIsRejection(t *testing.T) {
	s := NewMemoryApprovalStore()
	approved, reason := s.RequestApproval(context.Background(), "req-2", "run-1", "user-1", "danger", "{}", 20*time.Millisecond)
	if approved {
		t.Error("a timed-out request must be treated as rejected")
	}
	if reason == "" {
		t.Error("expected a non-empty timeout reason")
	}
}

func TestMemoryApprovalStoreRespondAfterTimeoutIsNonBlocking(t *testing.T) {
	s := NewMemoryApprovalStore()
	s.RequestApproval(context.Background(), "req-3", "run-1", "user-1", "danger", "{}", 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Respond("req-3", true, "too late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Respond after timeout must not block")
	}
}

func TestMemoryApprovalStoreCancelledContextIsRejection(t *testing.T) {
	s := NewMemoryApprovalStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	approved, reason := s.RequestApproval(ctx, "req-4", "run-1", "user-1", "danger", "{}", time.Minute)
	if approved {
		t.Error("a cancelled run must not approve a pending request")
	}
	if reason == "" {
		t.Error("expected a non-empty cancellation reason")
	}
}
