package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// Put purges expired entries once every purgeEvery writes.
const purgeEvery = 256

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped when read,
// purged every purgeEvery writes and by Sweep. It supports pattern deletion
// and is used for single-node runs and tests.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	now    func() time.Time
	writes int
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// SetClock overrides the time source used for expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.expired(item, now) {
		m.mu.Lock()
		// a concurrent Put may have replaced the entry since the read
		if current, still := m.items[key]; still && m.expired(current, m.now()) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	m.writes++
	if m.writes%purgeEvery == 0 {
		m.purgeLocked()
	}
	return nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// ForgetPattern deletes keys matching a path.Match glob.
func (m *Memory) ForgetPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for key := range m.items {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return deleted, err
		}
		if matched {
			delete(m.items, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for _, item := range m.items {
		if !m.expired(item, now) {
			n++
		}
	}
	return n
}

// Purge removes every expired entry and returns how many were removed.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked()
}

func (m *Memory) purgeLocked() int {
	now := m.now()
	removed := 0
	for key, item := range m.items {
		if m.expired(item, now) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// Sweep purges expired entries every interval until ctx is done.
func (m *Memory) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Purge()
		}
	}
}

func (m *Memory) expired(item memoryItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && !now.Before(item.expiresAt)
}

// Null stores nothing; every Get is a miss. It does not support patterns.
type Null struct{}

func (Null) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Null) Put(context.Context, string, []byte, time.Duration) error { return nil }
func (Null) Has(context.Context, string) (bool, error)                { return false, nil }
func (Null) Forget(context.Context, string) error                     { return nil }
