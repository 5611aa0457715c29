package engine

import (
	"testing"
	"time"
)

func TestResponseCacheGetPutRoundTrip(t *testing.T) {
	c := NewResponseCache(time.Hour, 10)
	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Put("k", CachedResponse{Content: "hello"})
	got, ok := c.Get("k")
	if !ok || got.Content != "hello" {
		t.Fatalf("Get after Put = (%+v, %v), want hello/true", got, ok)
	}
}

func TestResponseCacheExpiresByTTL(t *testing.T) {
	now := time.Now()
	c := NewResponseCache(time.Minute, 10)
	c.now = func() time.Time { return now }
	c.Put("k", CachedResponse{Content: "hello"})

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestResponseCacheEvictsOldestOverSize(t *testing.T) {
	now := time.Now()
	c := NewResponseCache(time.Hour, 2)
	c.now = func() time.Time { return now }
	c.Put("a", CachedResponse{Content: "a"})
	now = now.Add(time.Second)
	c.now = func() time.Time { return now }
	c.Put("b", CachedResponse{Content: "b"})
	now = now.Add(time.Second)
	c.now = func() time.Time { return now }
	c.Put("c", CachedResponse{Content: "c"})

	if c.Size() > 2 {
		t.Fatalf("cache size %d exceeds maxSize 2", c.Size())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestCacheEligible(t *testing.T) {
	zero := 0.0
	nonzero := 0.7
	cases := []struct {
		name        string
		hasTools    bool
		temperature *float64
		want        bool
	}{
		{"no tools, nil temp", false, nil, true},
		{"no tools, zero temp", false, &zero, true},
		{"no tools, nonzero temp", false, &nonzero, false},
		{"has tools", true, nil, false},
	}
	for _, tc := range cases {
		if got := CacheEligible(tc.hasTools, tc.temperature); got != tc.want {
			t.Errorf("%s: CacheEligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}
