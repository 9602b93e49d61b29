// Package policy provides interchangeable eviction strategies over plain key
// observations: a segmented LRU approximating ARC, and a frequency-bucketed
// LFU. Both are sequential state machines.
package policy

import "container/list"

// SLRU is a segmented LRU with a probationary segment for newly seen keys
// and a protected segment for keys confirmed by a second hit. Probationary
// capacity is roughly 20% of the total, protected roughly 80%.
//
// When a promotion overflows the protected segment, the protected tail is
// evicted outright rather than demoted back to probationary; this matches
// the simpler of the two admissible behaviors and keeps eviction order
// stable under promotion churn.
type SLRU struct {
	probationary    *list.List // front = MRU
	protected       *list.List
	inProbationary  map[string]*list.Element
	inProtected     map[string]*list.Element
	capProbationary int
	capProtected    int
}

// NewSLRU creates a policy with the given total capacity split across the
// two segments.
func NewSLRU(capacity int) *SLRU {
	if capacity < 1 {
		capacity = 1
	}
	capProtected := int(float64(capacity) * 0.8)
	capProbationary := capacity - capProtected
	if capProbationary < 1 {
		capProbationary = 1
	}
	return &SLRU{
		probationary:    list.New(),
		protected:       list.New(),
		inProbationary:  make(map[string]*list.Element),
		inProtected:     make(map[string]*list.Element),
		capProbationary: capProbationary,
		capProtected:    capProtected,
	}
}

// RecordHit observes an access to key. A key already in protected is
// refreshed; a probationary key is promoted to protected; an unknown key is
// admitted to probationary. Segment overflow evicts that segment's tail.
func (s *SLRU) RecordHit(key string) {
	if elem, ok := s.inProtected[key]; ok {
		s.protected.MoveToFront(elem)
		return
	}

	if elem, ok := s.inProbationary[key]; ok {
		s.probationary.Remove(elem)
		delete(s.inProbationary, key)
		s.inProtected[key] = s.protected.PushFront(key)
		for s.protected.Len() > s.capProtected {
			s.dropTail(s.protected, s.inProtected)
		}
		return
	}

	s.inProbationary[key] = s.probationary.PushFront(key)
	for s.probationary.Len() > s.capProbationary {
		s.dropTail(s.probationary, s.inProbationary)
	}
}

// SelectVictim removes and returns the next eviction candidate, preferring
// the probationary tail and falling back to the protected tail. Returns
// ok=false when both segments are empty.
func (s *SLRU) SelectVictim() (string, bool) {
	if key, ok := s.dropTail(s.probationary, s.inProbationary); ok {
		return key, true
	}
	return s.dropTail(s.protected, s.inProtected)
}

// Len returns the number of keys tracked across both segments.
func (s *SLRU) Len() int {
	return s.probationary.Len() + s.protected.Len()
}

// Contains reports whether key is tracked, and in which segment.
func (s *SLRU) Contains(key string) (probationary, protected bool) {
	_, probationary = s.inProbationary[key]
	_, protected = s.inProtected[key]
	return probationary, protected
}

func (s *SLRU) dropTail(segment *list.List, index map[string]*list.Element) (string, bool) {
	back := segment.Back()
	if back == nil {
		return "", false
	}
	key := back.Value.(string)
	segment.Remove(back)
	delete(index, key)
	return key, true
}
