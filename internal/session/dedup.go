package session

import (
	"sync"
	"time"
)

// DedupRegister remembers recently observed gateway event identifiers so a
// redelivered event is dropped instead of executed twice.
//
// This guards against gateway-level redelivery of the same event only; two
// different concurrent triggers for the same lead are serialized by the
// fencing lock, not here.
type DedupRegister struct {
	mu   sync.Mutex
	seen map[string]time.Time

	ttl time.Duration
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

const DefaultDedupTTL = 30 * time.Second

func NewDedupRegister(ttl time.Duration) *DedupRegister {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupRegister{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: time.Now,
	}
}

// Observe records eventID and reports whether this is its first sighting
// within the TTL window. Callers proceed only on true.
func (r *DedupRegister) Observe(eventID string) bool {
	if eventID == "" {
		// Events without a stable identifier cannot be deduplicated.
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.sweepLocked(now)

	if _, ok := r.seen[eventID]; ok {
		return false
	}
	r.seen[eventID] = now
	return true
}

// Clear drops all entries. Intended for tests.
func (r *DedupRegister) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = make(map[string]time.Time)
}

func (r *DedupRegister) sweepLocked(now time.Time) {
	for id, firstSeen := range r.seen {
		if now.Sub(firstSeen) > r.ttl {
			delete(r.seen, id)
		}
	}
}
