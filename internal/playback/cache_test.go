package playback

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	c := newURLCache(10, time.Minute)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.put("k1", "https://cdn.test/a.mp3")
	if url, ok := c.get("k1"); !ok || url != "https://cdn.test/a.mp3" {
		t.Fatalf("fresh get: %q %v", url, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.get("k1"); ok {
		t.Error("stale entry served")
	}
	if c.len() != 0 {
		t.Errorf("expired entry retained: len=%d", c.len())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	t.Parallel()

	c := newURLCache(2, 0)
	c.put("k1", "u1")
	c.put("k2", "u2")

	// Touch k1 so k2 is the eviction candidate.
	c.get("k1")
	c.put("k3", "u3")

	if _, ok := c.get("k2"); ok {
		t.Error("least recently used entry survived")
	}
	for _, k := range []string{"k1", "k3"} {
		if _, ok := c.get(k); !ok {
			t.Errorf("entry %s evicted unexpectedly", k)
		}
	}
}

func TestCachePutRefreshes(t *testing.T) {
	t.Parallel()

	c := newURLCache(10, time.Minute)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.put("k1", "u1")
	now = now.Add(50 * time.Second)
	c.put("k1", "u2")
	now = now.Add(30 * time.Second)

	url, ok := c.get("k1")
	if !ok {
		t.Fatal("refreshed entry expired")
	}
	if url != "u2" {
		t.Errorf("url: want u2, got %s", url)
	}
	if c.len() != 1 {
		t.Errorf("duplicate entries: %d", c.len())
	}
}

func TestCacheCapacityStaysBounded(t *testing.T) {
	t.Parallel()

	c := newURLCache(8, 0)
	for i := 0; i < 100; i++ {
		c.put(fmt.Sprintf("k%d", i), "u")
	}
	if c.len() != 8 {
		t.Errorf("len: want 8, got %d", c.len())
	}
}
