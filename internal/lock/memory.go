package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryLocker is the single-instance fallback. It provides the same fencing
// guarantees as RedisLocker within one process, and none across processes.
//
// Expired entries are evicted lazily on access and, best-effort, by a timer
// scheduled at acquisition. The timer is not required for correctness: an
// unexpired-looking entry is re-checked against the clock on every read.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	counter int64

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type memoryEntry struct {
	token     int64
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if key == "" {
		return Lease{}, false, errors.New("lock key is required")
	}
	if ttl <= 0 {
		return Lease{}, false, errors.New("lock ttl must be > 0")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.entries[key]; ok && now.Before(e.expiresAt) {
		return Lease{}, false, nil
	}

	l.counter++
	token := l.counter
	l.entries[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}

	// Best-effort eviction so abandoned keys do not accumulate.
	time.AfterFunc(ttl, func() { l.evict(key, token) })

	return Lease{Key: key, Token: token}, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, lease Lease) error {
	l.evict(lease.Key, lease.Token)
	return nil
}

func (l *MemoryLocker) IsValid(_ context.Context, lease Lease) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[lease.Key]
	if !ok {
		return false, nil
	}
	if !l.clock().Before(e.expiresAt) {
		return false, nil
	}
	return e.token == lease.Token, nil
}

func (l *MemoryLocker) CurrentToken(_ context.Context, key string) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !l.clock().Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.token, true, nil
}

// Clear drops all held locks. Intended for tests.
func (l *MemoryLocker) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]memoryEntry)
}

// evict removes the entry only if it still belongs to token, so a newer
// holder is never released by a stale timer or a stale lease.
func (l *MemoryLocker) evict(key string, token int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.token == token {
		delete(l.entries, key)
	}
}
