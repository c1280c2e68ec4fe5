package axisdb

import "sync/atomic"

// CacheKind classifies cache entries by what backs them.
type CacheKind int

const (
	// CacheStored marks entries whose data is persisted in the store, such
	// as entity reads and persisted relayouts. Dropping one only costs a
	// re-read.
	CacheStored CacheKind = iota
	// CacheMemory marks entries that exist only in the cache: query
	// results and relayouts the store cannot hold. Dropping one costs a
	// recomputation.
	CacheMemory
)

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Invalidations int64
	Evictions     int64
}

type depSet map[string]struct{}

func (d depSet) add(key string) { d[key] = struct{}{} }

func (d depSet) merge(other depSet) {
	for key := range other {
		d[key] = struct{}{}
	}
}

type cacheEntry struct {
	value any
	kind  CacheKind
}

// queryCache maps keys to results and keeps the reverse dependency index
// that makes precise invalidation possible: dependents[entity] holds every
// cache key whose computation read that entity. Invalidation of an entity
// removes the entity's own entry and recursively every dependent.
//
// The cache is guarded by the engine's store lock: put and invalidate run
// under the write lock, get may run under the read lock, so get never
// mutates anything except the atomic counters. Eviction is insertion
// ordered.
type queryCache struct {
	maxEntries int

	entries    map[string]*cacheEntry
	insertions []string
	dependents map[string]map[string]struct{}
	dependsOn  map[string][]string

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
	evictions     atomic.Int64
}

func newQueryCache(maxEntries int) *queryCache {
	return &queryCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		dependents: make(map[string]map[string]struct{}),
		dependsOn:  make(map[string][]string),
	}
}

func (c *queryCache) get(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// peek is get without counter side effects, for internal bookkeeping.
func (c *queryCache) peek(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *queryCache) put(key string, value any, kind CacheKind, deps depSet) {
	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	if c.maxEntries > 0 {
		for len(c.entries) >= c.maxEntries && len(c.insertions) > 0 {
			oldest := c.insertions[0]
			c.insertions = c.insertions[1:]
			if _, ok := c.entries[oldest]; ok {
				c.remove(oldest)
				c.evictions.Add(1)
			}
		}
	}
	c.entries[key] = &cacheEntry{value: value, kind: kind}
	c.insertions = append(c.insertions, key)
	for dep := range deps {
		set := c.dependents[dep]
		if set == nil {
			set = make(map[string]struct{})
			c.dependents[dep] = set
		}
		set[key] = struct{}{}
		c.dependsOn[key] = append(c.dependsOn[key], dep)
	}
}

// remove drops one entry and its forward dependency edges. It does not
// touch entries that depend on key.
func (c *queryCache) remove(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for _, dep := range c.dependsOn[key] {
		if set := c.dependents[dep]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(c.dependents, dep)
			}
		}
	}
	delete(c.dependsOn, key)
}

// invalidate drops the entry cached under key, if any, and recursively
// every entry that recorded key as a dependency.
func (c *queryCache) invalidate(key string) {
	c.invalidateVisited(key, make(map[string]struct{}))
}

func (c *queryCache) invalidateVisited(key string, visited map[string]struct{}) {
	if _, seen := visited[key]; seen {
		return
	}
	visited[key] = struct{}{}
	if _, ok := c.entries[key]; ok {
		c.remove(key)
		c.invalidations.Add(1)
	}
	deps := c.dependents[key]
	if len(deps) == 0 {
		return
	}
	keys := make([]string, 0, len(deps))
	for dep := range deps {
		keys = append(keys, dep)
	}
	delete(c.dependents, key)
	for _, dep := range keys {
		c.invalidateVisited(dep, visited)
	}
}

// clear drops every entry, or only entries of one kind when filter is
// non-nil.
func (c *queryCache) clear(filter *CacheKind) {
	if filter == nil {
		c.entries = make(map[string]*cacheEntry)
		c.insertions = nil
		c.dependents = make(map[string]map[string]struct{})
		c.dependsOn = make(map[string][]string)
		return
	}
	for key, e := range c.entries {
		if e.kind == *filter {
			c.remove(key)
		}
	}
}

func (c *queryCache) stats() CacheStats {
	return CacheStats{
		Entries:       len(c.entries),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Evictions:     c.evictions.Load(),
	}
}
