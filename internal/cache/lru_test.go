package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string, int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string, int](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUGetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("unexpected hit for b")
	}
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("overwrite failed, got %d", v)
	}
	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLRUEviction(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently used entry should survive")
	}
	if c.Size() != 2 || c.Stats().Evictions != 1 {
		t.Fatalf("size %d, stats %+v", c.Size(), c.Stats())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 3)
	clock.t = clock.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expired entry returned")
	}
	if removed := c.CleanExpired(); removed != 0 {
		t.Fatalf("expected nothing left to clean, removed %d", removed)
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Fatalf("refreshed entry should survive, got %v %v", v, ok)
	}
	clock.t = clock.t.Add(time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
}

func TestManagerSweep(t *testing.T) {
	c, clock := newTestCache(4, time.Second)
	c.Set("a", 1)
	clock.t = clock.t.Add(2 * time.Second)

	var reported int
	m := NewManager(func(n int) { reported = n })
	m.Register(c)
	if got := m.Sweep(); got != 1 || reported != 1 {
		t.Fatalf("sweep = %d, reported %d", got, reported)
	}
	m.Stop()
	m.Stop()
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(nil)
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
}
