package semantic

import (
	"container/list"
	"sync"

	"warden/internal/contracts"
)

// memo is a bounded LRU cache of detector results keyed by (text, class
// set). Eviction order is deterministic: least recently used first.
type memo struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type memoEntry struct {
	key    string
	signal contracts.Signal
}

func newMemo(capacity int) *memo {
	if capacity <= 0 {
		capacity = 10000
	}
	return &memo{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (m *memo) get(key string) (contracts.Signal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return contracts.Signal{}, false
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoEntry).signal, true
}

func (m *memo) put(key string, sig contracts.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		elem.Value.(*memoEntry).signal = sig
		m.order.MoveToFront(elem)
		return
	}

	m.entries[key] = m.order.PushFront(&memoEntry{key: key, signal: sig})

	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoEntry).key)
	}
}

func (m *memo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
