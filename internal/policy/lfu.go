package policy

import "container/list"

// LFU tracks access frequencies and evicts the least frequently used key,
// breaking ties by evicting the key that has been at its current frequency
// the longest.
type LFU struct {
	freq    map[string]int
	buckets map[int]*list.List // front = most recently bumped to this frequency
	elems   map[string]*list.Element
}

// NewLFU creates an empty frequency tracker.
func NewLFU() *LFU {
	return &LFU{
		freq:    make(map[string]int),
		buckets: make(map[int]*list.List),
		elems:   make(map[string]*list.Element),
	}
}

// Increment bumps key's frequency, moving it to the front of its new bucket.
func (l *LFU) Increment(key string) {
	current := l.freq[key]
	if elem, ok := l.elems[key]; ok {
		bucket := l.buckets[current]
		bucket.Remove(elem)
		if bucket.Len() == 0 {
			delete(l.buckets, current)
		}
	}

	next := current + 1
	l.freq[key] = next
	bucket, ok := l.buckets[next]
	if !ok {
		bucket = list.New()
		l.buckets[next] = bucket
	}
	l.elems[key] = bucket.PushFront(key)
}

// Victim removes and returns the eviction candidate: the oldest key in the
// lowest non-empty frequency bucket. Returns ok=false when empty.
func (l *LFU) Victim() (string, bool) {
	if len(l.freq) == 0 {
		return "", false
	}

	minFreq := 0
	for _, f := range l.freq {
		if minFreq == 0 || f < minFreq {
			minFreq = f
		}
	}

	bucket, ok := l.buckets[minFreq]
	if !ok || bucket.Len() == 0 {
		return "", false
	}
	back := bucket.Back()
	key := back.Value.(string)
	bucket.Remove(back)
	if bucket.Len() == 0 {
		delete(l.buckets, minFreq)
	}
	delete(l.freq, key)
	delete(l.elems, key)
	return key, true
}

// Frequency returns key's current count (0 when untracked).
func (l *LFU) Frequency(key string) int {
	return l.freq[key]
}

// Len returns the number of tracked keys.
func (l *LFU) Len() int {
	return len(l.freq)
}
