package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestBucket_AllowsUpToBurstSize(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 5, Enabled: true})

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}

	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucket_RefillsOverTime(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 100, BurstSize: 2, Enabled: true})

	bucket.Allow()
	bucket.Allow()
	if bucket.Allow() {
		t.Error("should be denied after exhausting tokens")
	}

	time.Sleep(50 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("should be allowed after refill")
	}
}

func TestBucket_Tokens(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 5, Enabled: true})

	initial := bucket.Tokens()
	if initial != 5 {
		t.Errorf("initial tokens = %f, want 5", initial)
	}

	bucket.Allow()
	if after := bucket.Tokens(); after >= initial {
		t.Error("tokens should decrease after Allow()")
	}
}

func TestBucket_WaitTime(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 1, Enabled: true})

	if bucket.WaitTime() != 0 {
		t.Error("should not wait when tokens available")
	}

	bucket.Allow()
	if wait := bucket.WaitTime(); wait <= 0 {
		t.Error("should need to wait when no tokens remain")
	}
}

func TestLimiter_SeparatesBucketsPerKey(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})

	for i := 0; i < 3; i++ {
		if !limiter.Allow("user1") {
			t.Errorf("user1 request %d should be allowed", i)
		}
	}
	if limiter.Allow("user1") {
		t.Error("user1 should be rate limited after exhausting its bucket")
	}
	if !limiter.Allow("user2") {
		t.Error("user2 should have its own independent bucket")
	}
}

func TestLimiter_DisabledAlwaysAllows(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: false})

	for i := 0; i < 100; i++ {
		if !limiter.Allow("user1") {
			t.Error("disabled limiter should always allow")
		}
	}
}

func TestLimiter_WaitTimeDisabledIsZero(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: false})
	if limiter.WaitTime("user1") != 0 {
		t.Error("a disabled limiter should report zero wait")
	}
}

func TestBucket_ZeroConfigUsesDefaults(t *testing.T) {
	bucket := NewBucket(Config{Enabled: true})

	if !bucket.Allow() {
		t.Error("Allow() should succeed on a zero-config bucket with defaults applied")
	}

	tokens := bucket.Tokens()
	if tokens < 15 || tokens > 20 {
		t.Errorf("expected tokens in range [15,20] with default burst of 20, got %f", tokens)
	}

	if bucket.WaitTime() != 0 {
		t.Error("WaitTime should be 0 while tokens remain")
	}
}

func TestLimiter_AdmitsNewKeyAfterPruneCycleAboveMaxKeys(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})

	// The limiter's maxKeys is 10000 by default; exceed it so a prune cycle
	// runs. Exhaust each key's tokens so prune (which only evicts
	// near-full buckets) can't remove them.
	keyCount := 10001
	for i := 0; i < keyCount; i++ {
		key := fmt.Sprintf("user-%d", i)
		for j := 0; j < 3; j++ {
			limiter.Allow(key)
		}
	}

	if !limiter.Allow("brand-new-key") {
		t.Error("a brand new key should still work after a prune cycle")
	}
}
