// Package slotcache implements an LRU cache backed by a slot arena addressed
// by index and generation instead of pointers.
//
// Slots are reused through a free list; a slot's generation is bumped every
// time it is freed, so a handle captured before the slot was recycled no
// longer matches and is treated as a miss. This keeps per-entry overhead to
// two ints, a generation counter, and a flag.
//
// The cache is a sequential state machine: callers must serialize access.
package slotcache

// none marks the absence of a slot index in the linked lists.
const none = -1

type handle struct {
	index      int
	generation uint32
}

type slot[K comparable, V any] struct {
	key        K
	value      V
	prev       int
	next       int
	generation uint32
	occupied   bool
}

// Entry is a key/value pair returned by iteration helpers.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Cache is a generational-index LRU cache with a fixed entry capacity.
type Cache[K comparable, V any] struct {
	capacity int
	pool     []slot[K, V]
	index    map[K]handle
	freeHead int
	head     int
	tail     int
	len      int
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		pool:     make([]slot[K, V], 0, capacity),
		index:    make(map[K]handle, capacity),
		freeHead: none,
		head:     none,
		tail:     none,
	}
}

// Len returns the number of occupied slots.
func (c *Cache[K, V]) Len() int { return c.len }

// Cap returns the configured capacity.
func (c *Cache[K, V]) Cap() int { return c.capacity }

// Get returns the value for key and moves it to the MRU position.
// A stale index entry (generation mismatch or unoccupied slot) is removed
// from the map and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	h, ok := c.index[key]
	if !ok {
		return zero, false
	}
	if !c.live(h) {
		delete(c.index, key)
		return zero, false
	}
	c.moveToHead(h.index)
	return c.pool[h.index].value, true
}

// Peek returns the value for key without touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	var zero V
	h, ok := c.index[key]
	if !ok {
		return zero, false
	}
	if !c.live(h) {
		delete(c.index, key)
		return zero, false
	}
	return c.pool[h.index].value, true
}

// Put inserts or updates key. Updating an existing live entry moves it to
// the MRU position and never evicts. Inserting at capacity evicts the tail
// entry first; the evicted pair is returned with ok=true.
func (c *Cache[K, V]) Put(key K, value V) (evictedKey K, evictedValue V, evicted bool) {
	if h, ok := c.index[key]; ok {
		if c.live(h) {
			c.pool[h.index].value = value
			c.moveToHead(h.index)
			return evictedKey, evictedValue, false
		}
		delete(c.index, key)
	}

	if c.len >= c.capacity {
		evictedKey, evictedValue, evicted = c.popTail()
	}

	idx := c.allocate()
	s := &c.pool[idx]
	s.key = key
	s.value = value
	s.occupied = true

	c.index[key] = handle{index: idx, generation: s.generation}
	c.attachHead(idx)
	c.len++

	return evictedKey, evictedValue, evicted
}

// Remove detaches key from the cache, returning its value.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	var zero V
	h, ok := c.index[key]
	if !ok {
		return zero, false
	}
	if !c.live(h) {
		delete(c.index, key)
		return zero, false
	}
	value := c.pool[h.index].value
	c.detach(h.index)
	c.free(h.index)
	delete(c.index, key)
	c.len--
	return value, true
}

// Entries returns every entry in MRU-to-LRU order. The result is a snapshot,
// not a live view.
func (c *Cache[K, V]) Entries() []Entry[K, V] {
	entries := make([]Entry[K, V], 0, c.len)
	for idx := c.head; idx != none; idx = c.pool[idx].next {
		s := &c.pool[idx]
		if s.occupied {
			entries = append(entries, Entry[K, V]{Key: s.key, Value: s.value})
		}
	}
	return entries
}

// TailEntries returns up to count entries starting from the LRU end,
// least-recently-used first, without touching recency.
func (c *Cache[K, V]) TailEntries(count int) []Entry[K, V] {
	entries := make([]Entry[K, V], 0, count)
	for idx := c.tail; idx != none && len(entries) < count; idx = c.pool[idx].prev {
		s := &c.pool[idx]
		if s.occupied {
			entries = append(entries, Entry[K, V]{Key: s.key, Value: s.value})
		}
	}
	return entries
}

func (c *Cache[K, V]) live(h handle) bool {
	if h.index < 0 || h.index >= len(c.pool) {
		return false
	}
	s := &c.pool[h.index]
	return s.occupied && s.generation == h.generation
}

// allocate returns a slot index, reusing the free list before growing the pool.
func (c *Cache[K, V]) allocate() int {
	if c.freeHead != none {
		idx := c.freeHead
		c.freeHead = c.pool[idx].next
		c.pool[idx].prev = none
		c.pool[idx].next = none
		return idx
	}
	c.pool = append(c.pool, slot[K, V]{prev: none, next: none})
	return len(c.pool) - 1
}

func (c *Cache[K, V]) moveToHead(idx int) {
	if c.head == idx {
		return
	}
	c.detach(idx)
	c.attachHead(idx)
}

// detach unlinks idx from the LRU list, fixing head/tail roots as needed.
func (c *Cache[K, V]) detach(idx int) {
	prev := c.pool[idx].prev
	next := c.pool[idx].next

	if prev != none {
		c.pool[prev].next = next
	} else {
		c.head = next
	}
	if next != none {
		c.pool[next].prev = prev
	} else {
		c.tail = prev
	}

	c.pool[idx].prev = none
	c.pool[idx].next = none
}

func (c *Cache[K, V]) attachHead(idx int) {
	c.pool[idx].prev = none
	c.pool[idx].next = c.head

	if c.head != none {
		c.pool[c.head].prev = idx
	}
	c.head = idx

	if c.tail == none {
		c.tail = idx
	}
}

// popTail evicts the LRU entry and pushes its slot onto the free list.
func (c *Cache[K, V]) popTail() (K, V, bool) {
	var (
		zeroK K
		zeroV V
	)
	if c.tail == none {
		return zeroK, zeroV, false
	}
	idx := c.tail
	c.detach(idx)

	s := &c.pool[idx]
	key := s.key
	value := s.value
	s.key = zeroK
	s.value = zeroV
	s.occupied = false
	s.generation++

	s.next = c.freeHead
	c.freeHead = idx

	delete(c.index, key)
	c.len--

	return key, value, true
}

// free resets a detached slot and pushes it onto the free list.
func (c *Cache[K, V]) free(idx int) {
	var (
		zeroK K
		zeroV V
	)
	s := &c.pool[idx]
	s.key = zeroK
	s.value = zeroV
	s.occupied = false
	s.generation++
	s.next = c.freeHead
	c.freeHead = idx
}
