package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is a size-bounded LRU. Values are copied in and out so callers
// cannot mutate cached bytes.
type Memory struct {
	capacity int64

	mu      sync.Mutex
	size    int64
	entries map[string]*list.Element
	lru     *list.List // front is most recent
	stats   Stats
}

type memoryEntry struct {
	key     string
	value   []byte
	created time.Time
}

// NewMemory returns an LRU holding at most capacity bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns a copy of the value and marks it recently used.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.lru.MoveToFront(el)
	m.stats.Hits++
	return clone(el.Value.(*memoryEntry).value), true
}

// Put stores value, evicting least recently used entries to make room.
func (m *Memory) Put(key string, value []byte) error {
	n := int64(len(value))
	if n > m.capacity {
		return ErrItemTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
	for m.size+n > m.capacity && m.lru.Len() > 0 {
		m.removeElement(m.lru.Back())
		m.stats.Evictions++
	}

	m.entries[key] = m.lru.PushFront(&memoryEntry{key: key, value: clone(value), created: time.Now()})
	m.size += n
	return nil
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
}

// Contains reports presence without touching recency or stats.
func (m *Memory) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*list.Element)
	m.lru.Init()
	m.size = 0
}

// Prune drops entries created before cutoff and returns how many went.
func (m *Memory) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for el := m.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).created.Before(cutoff) {
			m.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Size returns the bytes held.
func (m *Memory) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Stats returns a snapshot of tier usage.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Level = LevelMemory
	s.Entries = m.lru.Len()
	s.Size = m.size
	s.Capacity = m.capacity
	return s
}

func (m *Memory) removeElement(el *list.Element) {
	e := m.lru.Remove(el).(*memoryEntry)
	delete(m.entries, e.key)
	m.size -= int64(len(e.value))
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
