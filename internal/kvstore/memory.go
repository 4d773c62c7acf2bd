package kvstore

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time // zero means no expiration
}

// MemoryStore is an in-process KVStore built as a container/list
// LRU-with-TTL cache. It is not a substitute for Redis in a
// multi-replica deployment: state here is visible only to the process that
// holds it.
type MemoryStore struct {
	mu         sync.Mutex
	ll         *list.List
	items      map[string]*list.Element
	defaultTTL time.Duration
	maxEntries int
}

// NewMemoryStore creates a MemoryStore. defaultTTL is applied to Set/IncrBy
// calls that pass a zero TTL; pass 0 to mean "no default, no expiration".
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		defaultTTL: defaultTTL,
		maxEntries: 100_000,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	entry := el.Value.(*memoryEntry)
	if m.expired(entry) {
		m.removeElement(el)
		return "", ErrNotFound
	}
	m.ll.MoveToFront(el)
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryStore) setLocked(key, value string, ttl time.Duration) *memoryEntry {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.ll.MoveToFront(el)
		return entry
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: expiresAt}
	el := m.ll.PushFront(entry)
	m.items[key] = el
	if m.ll.Len() > m.maxEntries {
		m.removeOldest()
	}
	return entry
}

func (m *MemoryStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(0)
	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		if !m.expired(entry) {
			n, err := strconv.ParseInt(entry.value, 10, 64)
			if err == nil {
				current = n
			}
		}
	}
	newVal := current + delta
	m.setLocked(key, strconv.FormatInt(newVal, 10), ttl)
	return newVal, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil
	}
	entry := el.Value.(*memoryEntry)
	if m.expired(entry) {
		m.removeElement(el)
		return nil
	}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return false, nil
	}
	if m.expired(el.Value.(*memoryEntry)) {
		m.removeElement(el)
		return false, nil
	}
	return true, nil
}

// EvalScript implements the small set of CAS operations natively rather
// than interpreting Lua, since a single process needs no server-side
// script to get atomicity — the mutex already serializes everything.
func (m *MemoryStore) EvalScript(_ context.Context, script Script, keys []string, args []interface{}) (interface{}, error) {
	switch script {
	case ScriptIncrCheckLimit:
		return m.incrCheckLimit(keys, args)
	default:
		return nil, ErrNotFound
	}
}

func (m *MemoryStore) incrCheckLimit(keys []string, args []interface{}) (interface{}, error) {
	key := keys[0]
	delta := args[0].(int64)
	limit := args[1].(int64)
	ttl, _ := args[2].(time.Duration)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(0)
	existed := false
	var prevExpiry time.Time
	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		if !m.expired(entry) {
			existed = true
			prevExpiry = entry.expiresAt
			if n, err := strconv.ParseInt(entry.value, 10, 64); err == nil {
				current = n
			}
		}
	}

	next := current + delta
	if limit > 0 && next > limit {
		return []interface{}{current, false}, nil
	}
	entry := m.setLocked(key, strconv.FormatInt(next, 10), ttl)
	if existed {
		entry.expiresAt = prevExpiry // TTL is applied on first write only
	}
	return []interface{}{next, true}, nil
}

func (m *MemoryStore) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func (m *MemoryStore) removeOldest() {
	el := m.ll.Back()
	if el != nil {
		m.removeElement(el)
	}
}

func (m *MemoryStore) removeElement(el *list.Element) {
	m.ll.Remove(el)
	entry := el.Value.(*memoryEntry)
	delete(m.items, entry.key)
}

// Len reports the number of entries currently stored, including entries
// that have expired but have not yet been lazily evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
