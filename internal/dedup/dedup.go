// Package dedup suppresses literal repeats of raw provider records within one
// polling cycle. It carries no state across cycles: whether an offer is new
// to the system is decided by reconciliation against the persisted store.
package dedup

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// Fingerprint returns a stable digest of a raw record.
//
// The record is serialized canonically first (map keys sorted, no
// whitespace), so payloads that differ only in key order or formatting
// fingerprint the same.
func Fingerprint(rec map[string]any) string {
	b, err := json.Marshal(rec)
	if err != nil {
		// Unserializable values (NaN, channels) cannot come out of a JSON decode;
		// fall back to the printed form so Fingerprint stays total.
		b = []byte(fmt.Sprintf("%#v", rec))
	}
	return hashBytes(b)
}

func hashBytes(b []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Set is a cycle-scoped fingerprint set. Safe for concurrent use.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSet() *Set { return &Set{seen: map[string]struct{}{}} }

// Observe reports true the first time rec's fingerprint is seen since the
// last Reset, false afterwards.
func (s *Set) Observe(rec map[string]any) bool {
	return s.ObserveFingerprint(Fingerprint(rec))
}

// ObserveFingerprint is Observe for a precomputed fingerprint.
func (s *Set) ObserveFingerprint(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[fp]; ok {
		return false
	}
	s.seen[fp] = struct{}{}
	return true
}

// Reset forgets every fingerprint. Called at the start of each cycle.
func (s *Set) Reset() {
	s.mu.Lock()
	s.seen = map[string]struct{}{}
	s.mu.Unlock()
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
