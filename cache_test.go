package axisdb

import "testing"

func TestCachePutGet(t *testing.T) {
	c := newQueryCache(0)
	if _, ok := c.get("k"); ok {
		t.Fatal("empty cache hit")
	}
	c.put("k", 1, CacheMemory, depSet{"a": {}})
	v, ok := c.get("k")
	if !ok || v.(int) != 1 {
		t.Fatalf("get = %v, %v", v, ok)
	}
	st := c.stats()
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
	// peek does not touch the counters.
	if _, ok := c.peek("k"); !ok {
		t.Error("peek miss")
	}
	if _, ok := c.peek("other"); ok {
		t.Error("peek hit on missing key")
	}
	if got := c.stats(); got.Hits != 1 || got.Misses != 1 {
		t.Errorf("peek changed counters: %+v", got)
	}
}

func TestCachePutReplaces(t *testing.T) {
	c := newQueryCache(0)
	c.put("k", 1, CacheMemory, depSet{"a": {}})
	c.put("k", 2, CacheMemory, depSet{"b": {}})
	v, _ := c.get("k")
	if v.(int) != 2 {
		t.Fatalf("value = %v", v)
	}
	// The old dependency edge is gone: invalidating "a" keeps the entry.
	c.invalidate("a")
	if _, ok := c.peek("k"); !ok {
		t.Error("stale dependency edge survived a replace")
	}
	c.invalidate("b")
	if _, ok := c.peek("k"); ok {
		t.Error("entry survived invalidation of its dependency")
	}
}

func TestCacheInvalidationCascades(t *testing.T) {
	c := newQueryCache(0)
	// base <- mid <- top, plus an unrelated entry.
	c.put("base", 1, CacheStored, depSet{"axis cell": {}})
	c.put("mid", 2, CacheMemory, depSet{"base": {}})
	c.put("top", 3, CacheMemory, depSet{"mid": {}})
	c.put("other", 4, CacheMemory, depSet{"axis gene": {}})

	c.invalidate("axis cell")
	for _, key := range []string{"base", "mid", "top"} {
		if _, ok := c.peek(key); ok {
			t.Errorf("%q survived a cascading invalidation", key)
		}
	}
	if _, ok := c.peek("other"); !ok {
		t.Error("unrelated entry was dropped")
	}
	if st := c.stats(); st.Invalidations != 3 {
		t.Errorf("invalidations = %d, want 3", st.Invalidations)
	}
}

func TestCacheInvalidationCycleSafe(t *testing.T) {
	c := newQueryCache(0)
	c.put("a", 1, CacheMemory, depSet{"b": {}})
	c.put("b", 2, CacheMemory, depSet{"a": {}})
	// Must terminate despite the mutual dependency.
	c.invalidate("a")
	if _, ok := c.peek("a"); ok {
		t.Error("a survived")
	}
	if _, ok := c.peek("b"); ok {
		t.Error("b survived")
	}
}

func TestCacheEviction(t *testing.T) {
	c := newQueryCache(2)
	c.put("a", 1, CacheMemory, nil)
	c.put("b", 2, CacheMemory, nil)
	c.put("c", 3, CacheMemory, nil)
	if _, ok := c.peek("a"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.peek("b"); !ok {
		t.Error("b was evicted")
	}
	if _, ok := c.peek("c"); !ok {
		t.Error("newest entry missing")
	}
	if st := c.stats(); st.Entries != 2 || st.Evictions != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCacheClearByKind(t *testing.T) {
	c := newQueryCache(0)
	c.put("stored", 1, CacheStored, nil)
	c.put("memory", 2, CacheMemory, nil)

	kind := CacheMemory
	c.clear(&kind)
	if _, ok := c.peek("memory"); ok {
		t.Error("memory entry survived")
	}
	if _, ok := c.peek("stored"); !ok {
		t.Error("stored entry was dropped")
	}

	c.clear(nil)
	if st := c.stats(); st.Entries != 0 {
		t.Errorf("entries after clear = %d", st.Entries)
	}
}
