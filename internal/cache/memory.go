package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryCapacity bounds the entries a MemoryStore holds. Registry
// snapshots are keyed by location and liveness results by URL, so the key
// space grows with traffic; least recently used entries go first.
const DefaultMemoryCapacity = 4096

// sweepEvery is how many writes pass between scans for expired entries.
const sweepEvery = 256

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryStore keeps entries in a size-capped LRU in process memory. It
// survives only as long as the process (or serverless instance) does.
type MemoryStore struct {
	items  *lru.Cache[string, memoryItem]
	clock  Clock
	writes atomic.Uint64
}

type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	capacity int
}

// WithCapacity overrides DefaultMemoryCapacity.
func WithCapacity(n int) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// NewMemoryStore returns an empty store. A nil clock uses the wall clock.
func NewMemoryStore(clock Clock, opts ...MemoryOption) *MemoryStore {
	if clock == nil {
		clock = SystemClock{}
	}
	o := memoryOptions{capacity: DefaultMemoryCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	// only fails for a non-positive size
	items, _ := lru.New[string, memoryItem](o.capacity)
	return &MemoryStore{items: items, clock: clock}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := m.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if item.expired(m.clock.Now()) {
		m.items.Remove(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores value under key. A ttl <= 0 keeps the entry until overwritten
// or evicted.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.clock.Now().Add(ttl)
	}
	m.items.Add(key, item)
	if m.writes.Add(1)%sweepEvery == 0 {
		m.Sweep()
	}
	return nil
}

// Sweep drops every expired entry, read or not.
func (m *MemoryStore) Sweep() {
	now := m.clock.Now()
	for _, key := range m.items.Keys() {
		if item, ok := m.items.Peek(key); ok && item.expired(now) {
			m.items.Remove(key)
		}
	}
}

// Len reports the number of stored entries, expired ones included until
// they are read or swept.
func (m *MemoryStore) Len() int {
	return m.items.Len()
}
