// Package cache provides a capacity-bounded LRU cache with pluggable cost,
// eviction-eligibility and eviction-callback strategies. It is the storage
// engine behind each data source's tile cache.
package cache

import "container/list"

// CostFunc reports the resident cost of a value in capacity units.
type CostFunc[V any] func(V) float64

// EvictionFilter reports whether a value may be evicted right now. Returning
// false protects the entry from capacity-driven eviction; explicit Delete and
// EvictAll ignore the filter.
type EvictionFilter[V any] func(V) bool

// EvictionCallback is invoked once for every entry removed by capacity
// eviction or EvictAll.
type EvictionCallback[V any] func(key uint64, value V)

type entry[V any] struct {
	key   uint64
	value V
	cost  float64
}

// Cache is an LRU cache keyed by encoded tile keys. Total resident cost is
// kept at or below capacity whenever enough entries are evictable; when every
// remaining entry is protected by the eviction filter the cache may
// legitimately exceed its capacity until protection lifts.
//
// Cache is not synchronized: the frame core mutates it from a single
// goroutine by contract.
type Cache[V any] struct {
	capacity float64
	size     float64
	cost     CostFunc[V]
	canEvict EvictionFilter[V]
	onEvict  EvictionCallback[V]
	items    map[uint64]*list.Element
	lru      *list.List // front = most recently used
}

// New creates a cache with the given capacity and strategies. cost must not
// be nil; canEvict and onEvict may be nil (everything evictable, no callback).
func New[V any](capacity float64, cost CostFunc[V], canEvict EvictionFilter[V], onEvict EvictionCallback[V]) *Cache[V] {
	return &Cache[V]{
		capacity: capacity,
		cost:     cost,
		canEvict: canEvict,
		onEvict:  onEvict,
		items:    make(map[uint64]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the value for key and records the access for recency.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*entry[V]).value, true
}

// Set inserts or replaces the value for key, then evicts least-recently-used
// evictable entries until the total cost is back under capacity or nothing
// evictable remains.
func (c *Cache[V]) Set(key uint64, value V) {
	cost := c.cost(value)
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		c.size += cost - ent.cost
		ent.value = value
		ent.cost = cost
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(&entry[V]{key: key, value: value, cost: cost})
		c.items[key] = elem
		c.size += cost
	}
	c.ShrinkToCapacity()
}

// Delete removes the entry for key without consulting the eviction filter and
// without invoking the eviction callback. It reports whether an entry was
// removed.
func (c *Cache[V]) Delete(key uint64) bool {
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	ent := elem.Value.(*entry[V])
	c.lru.Remove(elem)
	delete(c.items, key)
	c.size -= ent.cost
	return true
}

// EvictAll drains the cache, invoking the eviction callback for every entry.
func (c *Cache[V]) EvictAll() {
	for elem := c.lru.Back(); elem != nil; elem = c.lru.Back() {
		ent := elem.Value.(*entry[V])
		c.lru.Remove(elem)
		delete(c.items, ent.key)
		c.size -= ent.cost
		if c.onEvict != nil {
			c.onEvict(ent.key, ent.value)
		}
	}
}

// ShrinkToCapacity re-applies the eviction policy without inserting anything.
// Call it after changing the capacity or cost function.
func (c *Cache[V]) ShrinkToCapacity() {
	if c.size <= c.capacity {
		return
	}
	for elem := c.lru.Back(); elem != nil && c.size > c.capacity; {
		prev := elem.Prev()
		ent := elem.Value.(*entry[V])
		if c.canEvict == nil || c.canEvict(ent.value) {
			c.lru.Remove(elem)
			delete(c.items, ent.key)
			c.size -= ent.cost
			if c.onEvict != nil {
				c.onEvict(ent.key, ent.value)
			}
		}
		elem = prev
	}
}

// ForEach visits every resident entry in most-recently-used order. The
// callback must not mutate the cache; collect keys and mutate afterwards.
func (c *Cache[V]) ForEach(fn func(key uint64, value V)) {
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry[V])
		fn(ent.key, ent.value)
	}
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int { return len(c.items) }

// Size returns the total resident cost in capacity units.
func (c *Cache[V]) Size() float64 { return c.size }

// Capacity returns the configured capacity.
func (c *Cache[V]) Capacity() float64 { return c.capacity }

// SetCapacity changes the capacity. Callers follow up with ShrinkToCapacity.
func (c *Cache[V]) SetCapacity(capacity float64) { c.capacity = capacity }

// SetCostFunc swaps the cost function and recomputes the cost of every
// resident entry. Callers follow up with ShrinkToCapacity.
func (c *Cache[V]) SetCostFunc(cost CostFunc[V]) {
	c.cost = cost
	c.size = 0
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry[V])
		ent.cost = cost(ent.value)
		c.size += ent.cost
	}
}
