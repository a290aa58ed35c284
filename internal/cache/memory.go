package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TTL cache. Expired entries are dropped lazily on
// read and on tag invalidation.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memItem
	tags  map[string]map[string]struct{} // tag -> keys
	now   func() time.Time
}

type memItem struct {
	b    []byte
	exp  time.Time
	tags []string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memItem),
		tags:  make(map[string]map[string]struct{}),
		now:   time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && m.now().After(it.exp) {
		m.mu.Lock()
		// re-check
		if it2, ok2 := m.items[key]; ok2 && !it2.exp.IsZero() && m.now().After(it2.exp) {
			m.deleteLocked(key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	// return a copy to avoid external mutation
	out := make([]byte, len(it.b))
	copy(out, it.b)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	b := make([]byte, len(data))
	copy(b, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
	m.items[key] = memItem{b: b, exp: exp, tags: append([]string(nil), tags...)}
	for _, tag := range tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// InvalidateTag removes every entry carrying tag and returns how many live
// entries were removed.
func (m *Memory) InvalidateTag(_ context.Context, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := m.now()
	for key := range m.tags[tag] {
		if it, ok := m.items[key]; ok && (it.exp.IsZero() || !now.After(it.exp)) {
			n++
		}
		m.deleteLocked(key)
	}
	delete(m.tags, tag)
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	clear(m.items)
	clear(m.tags)
	m.mu.Unlock()
	return nil
}

// deleteLocked removes key and its tag memberships. m.mu must be held.
func (m *Memory) deleteLocked(key string) {
	it, ok := m.items[key]
	if !ok {
		return
	}
	delete(m.items, key)
	for _, tag := range it.tags {
		if keys, ok := m.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}
