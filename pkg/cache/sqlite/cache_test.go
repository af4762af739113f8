package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quillcache/quill/pkg/cache"
)

func newTestCache(t *testing.T, maxSize int) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, maxSize, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func key(input string) cache.Key {
	return cache.Encode(input, "model=test")
}

func TestUpdateAndLookup(t *testing.T) {
	c := newTestCache(t, 10)
	k := cache.Encode("what is a monad", "model=llama3")

	c.Update(k, "a burrito")

	v, ok := c.Lookup(k)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if v != "a burrito" {
		t.Errorf("unexpected value: %q", v)
	}

	// Miss for a different fingerprint of the same input.
	_, ok = c.Lookup(cache.Encode("what is a monad", "model=mistral"))
	if ok {
		t.Error("expected cache miss for different fingerprint")
	}
}

func TestCapacityOne(t *testing.T) {
	c := newTestCache(t, 1)

	c.Update(key("k1"), "a")
	c.Update(key("k2"), "b")

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.CurrentSize != 1 {
		t.Fatalf("expected 1 row, got %d", stats.CurrentSize)
	}

	if _, ok := c.Lookup(key("k1")); ok {
		t.Error("expected k1 to be evicted")
	}
	v, ok := c.Lookup(key("k2"))
	if !ok || v != "b" {
		t.Errorf("expected k2 hit with %q, got %q (present=%t)", "b", v, ok)
	}
}

func TestEvictionFollowsLastAccessed(t *testing.T) {
	c := newTestCache(t, 2)

	c.Update(key("k1"), "a")
	c.Update(key("k2"), "b")

	// Touch k1 so k2 becomes the eviction victim.
	if _, ok := c.Lookup(key("k1")); !ok {
		t.Fatal("expected k1 hit")
	}

	c.Update(key("k3"), "c")

	if _, ok := c.Lookup(key("k2")); ok {
		t.Error("expected k2 to be evicted")
	}
	if _, ok := c.Lookup(key("k1")); !ok {
		t.Error("expected k1 to survive")
	}
	if _, ok := c.Lookup(key("k3")); !ok {
		t.Error("expected k3 to survive")
	}
}

func TestRowCountNeverExceedsBound(t *testing.T) {
	c := newTestCache(t, 3)

	for i := 0; i < 10; i++ {
		c.Update(key(fmt.Sprintf("k%d", i)), "v")
		stats, err := c.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if stats.CurrentSize > 3 {
			t.Fatalf("row count %d exceeds bound after update %d", stats.CurrentSize, i)
		}
	}
}

func TestUpsertDoesNotGrow(t *testing.T) {
	c := newTestCache(t, 10)

	c.Update(key("k1"), "a")
	c.Update(key("k1"), "a2")

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.CurrentSize != 1 {
		t.Errorf("expected 1 row after upsert, got %d", stats.CurrentSize)
	}

	v, ok := c.Lookup(key("k1"))
	if !ok || v != "a2" {
		t.Errorf("expected latest value %q, got %q (present=%t)", "a2", v, ok)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")

	c, err := New(dbPath, 10, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	c.Update(key("k1"), "a")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dbPath, 10, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()

	v, ok := reopened.Lookup(key("k1"))
	if !ok || v != "a" {
		t.Errorf("expected persisted value %q, got %q (present=%t)", "a", v, ok)
	}
}

func TestShrunkCapacityAppliesOnReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")

	c, err := New(dbPath, 5, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		c.Update(key(fmt.Sprintf("k%d", i)), "v")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// The trigger is recreated with the new bound; the next insert
	// evicts down to it.
	reopened, err := New(dbPath, 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()

	reopened.Update(key("k5"), "v")
	stats, err := reopened.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.CurrentSize != 2 {
		t.Errorf("expected 2 rows after shrink, got %d", stats.CurrentSize)
	}
	if _, ok := reopened.Lookup(key("k5")); !ok {
		t.Error("expected newest entry to survive the shrink")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 10)

	c.Update(key("k1"), "a")
	c.Update(key("k2"), "b")

	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.CurrentSize != 0 {
		t.Errorf("expected 0 rows after clear, got %d", stats.CurrentSize)
	}

	// The cache stays usable after a clear.
	c.Update(key("k3"), "c")
	if _, ok := c.Lookup(key("k3")); !ok {
		t.Error("expected hit after post-clear update")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, 10)

	c.Update(key("k1"), "a")
	c.Lookup(key("k1"))      // hit
	c.Lookup(key("missing")) // miss

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.HitRate)
	}
	if stats.Oldest.IsZero() || stats.Newest.IsZero() {
		t.Error("expected entry age bounds to be set")
	}
	if stats.Newest.Before(stats.Oldest) {
		t.Error("newest entry precedes oldest")
	}
}

func TestPing(t *testing.T) {
	c := newTestCache(t, 10)
	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestMaxSizeClampedToOne(t *testing.T) {
	c := newTestCache(t, 0)

	c.Update(key("k1"), "a")
	c.Update(key("k2"), "b")

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.CurrentSize != 1 {
		t.Errorf("expected clamped capacity of 1, got %d rows", stats.CurrentSize)
	}
	if stats.MaxSize != 1 {
		t.Errorf("expected max size 1, got %d", stats.MaxSize)
	}
}
