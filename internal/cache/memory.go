package cache

import (
	"context"
	"sync"
	"time"
)

// Defaults for the process-local cache.
const (
	DefaultTTL            = time.Hour
	DefaultSweepThreshold = 500
)

// SweepHook is called after every sweep with the number of removed entries
// and the number left.
type SweepHook func(removed, remaining int)

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithSweepHook registers a callback run after each sweep.
func WithSweepHook(h SweepHook) Option {
	return func(m *Memory) { m.onSweep = h }
}

// Memory is a thread-safe in-memory cache with time-based expiry.
//
// Expired entries are not evicted on read. They stay until a sweep runs,
// which happens after an insert pushes the entry count above the sweep
// threshold. Entries younger than the TTL always survive a sweep, so the map
// can grow past the threshold while every entry is fresh.
type Memory struct {
	mu             sync.Mutex
	ttl            time.Duration
	sweepThreshold int
	now            func() time.Time
	onSweep        SweepHook
	items          map[string]Entry
}

var _ Store = (*Memory)(nil)

// NewMemory creates a new in-memory cache. Non-positive arguments select
// DefaultTTL and DefaultSweepThreshold.
func NewMemory(ttl time.Duration, sweepThreshold int, opts ...Option) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepThreshold <= 0 {
		sweepThreshold = DefaultSweepThreshold
	}
	m := &Memory{
		ttl:            ttl,
		sweepThreshold: sweepThreshold,
		now:            time.Now,
		items:          make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the retention window.
func (m *Memory) TTL() time.Duration { return m.ttl }

// Get returns the entry for key if it is younger than the TTL.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[key]
	if !ok || entry.Age(m.now()) >= m.ttl {
		return Entry{}, false
	}
	return entry, true
}

// Set stores translation under key stamped with the current time.
func (m *Memory) Set(ctx context.Context, key, translation string) {
	m.Put(ctx, key, Entry{Translation: translation, Time: m.now()})
}

// Put stores a fully formed entry, keeping its original timestamp.
func (m *Memory) Put(_ context.Context, key string, entry Entry) {
	m.mu.Lock()
	m.items[key] = entry
	var removed, remaining int
	swept := len(m.items) > m.sweepThreshold
	if swept {
		removed = m.sweepLocked()
		remaining = len(m.items)
	}
	hook := m.onSweep
	m.mu.Unlock()

	if swept && hook != nil {
		hook(removed, remaining)
	}
}

// Sweep removes every entry older than the TTL and returns how many were
// removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

// sweepLocked must be called with m.mu held.
func (m *Memory) sweepLocked() int {
	now := m.now()
	removed := 0
	for k, e := range m.items {
		if e.Age(now) > m.ttl {
			delete(m.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Clear removes all entries from the cache.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]Entry)
}
