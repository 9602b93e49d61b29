package policy

import (
	"fmt"
	"testing"
)

func TestSLRUNewKeyEntersProbationary(t *testing.T) {
	s := NewSLRU(10)

	s.RecordHit("a")
	probationary, protected := s.Contains("a")
	if !probationary || protected {
		t.Fatalf("a in probationary=%v protected=%v; want probationary only", probationary, protected)
	}
}

func TestSLRUSecondHitPromotes(t *testing.T) {
	s := NewSLRU(10)

	s.RecordHit("a")
	s.RecordHit("a")
	probationary, protected := s.Contains("a")
	if probationary || !protected {
		t.Fatalf("a in probationary=%v protected=%v; want protected only", probationary, protected)
	}
}

func TestSLRUVictimPrefersProbationary(t *testing.T) {
	s := NewSLRU(10)

	s.RecordHit("hot")
	s.RecordHit("hot") // promoted
	s.RecordHit("cold")

	victim, ok := s.SelectVictim()
	if !ok || victim != "cold" {
		t.Fatalf("victim = %q, %v; want cold", victim, ok)
	}
	victim, ok = s.SelectVictim()
	if !ok || victim != "hot" {
		t.Fatalf("second victim = %q, %v; want hot", victim, ok)
	}
	if _, ok := s.SelectVictim(); ok {
		t.Fatal("empty policy should report no victim")
	}
}

func TestSLRUProbationaryOverflowEvictsTail(t *testing.T) {
	s := NewSLRU(10) // probationary capacity 2

	s.RecordHit("a")
	s.RecordHit("b")
	s.RecordHit("c") // pushes a out

	if probationary, _ := s.Contains("a"); probationary {
		t.Fatal("a should have been evicted from probationary")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d; want 2", s.Len())
	}
}

func TestSLRUProtectedOverflowEvictsOutright(t *testing.T) {
	s := NewSLRU(5) // protected capacity 4

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		s.RecordHit(key)
		s.RecordHit(key)
	}

	// k0 was the protected tail when k4's promotion overflowed the segment.
	probationary, protected := s.Contains("k0")
	if probationary || protected {
		t.Fatalf("k0 in probationary=%v protected=%v; want evicted", probationary, protected)
	}
	if s.Len() != 4 {
		t.Fatalf("Len = %d; want 4", s.Len())
	}
}

func TestSLRUProtectedRefreshReorders(t *testing.T) {
	s := NewSLRU(10)

	for _, key := range []string{"a", "b"} {
		s.RecordHit(key)
		s.RecordHit(key)
	}
	s.RecordHit("a") // a back to protected MRU

	victim, ok := s.SelectVictim()
	if !ok || victim != "b" {
		t.Fatalf("victim = %q, %v; want b", victim, ok)
	}
}

func TestLFUVictimIsLeastFrequent(t *testing.T) {
	l := NewLFU()

	l.Increment("a")
	l.Increment("a")
	l.Increment("a")
	l.Increment("b")

	victim, ok := l.Victim()
	if !ok || victim != "b" {
		t.Fatalf("victim = %q, %v; want b", victim, ok)
	}
	victim, ok = l.Victim()
	if !ok || victim != "a" {
		t.Fatalf("second victim = %q, %v; want a", victim, ok)
	}
	if _, ok := l.Victim(); ok {
		t.Fatal("empty tracker should report no victim")
	}
}

func TestLFUTieBreaksOldestInBucket(t *testing.T) {
	l := NewLFU()

	l.Increment("first")
	l.Increment("second")

	victim, ok := l.Victim()
	if !ok || victim != "first" {
		t.Fatalf("victim = %q, %v; want first", victim, ok)
	}
}

func TestLFUFrequencyAndLen(t *testing.T) {
	l := NewLFU()

	l.Increment("a")
	l.Increment("a")
	if got := l.Frequency("a"); got != 2 {
		t.Fatalf("Frequency(a) = %d; want 2", got)
	}
	if got := l.Frequency("missing"); got != 0 {
		t.Fatalf("Frequency(missing) = %d; want 0", got)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d; want 1", l.Len())
	}
}
