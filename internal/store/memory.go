package store

import (
	"slices"
	"sort"
	"sync"
)

// subscriberBuffer is the channel capacity given to each subscriber.
const subscriberBuffer = 100

// MemoryStore keeps element snapshots in a map keyed by [Snapshot.Key].
//
// A snapshot taken before the one already stored for its key is discarded,
// so a late seed never hides a newer event. Each accepted snapshot is
// offered to every subscriber without blocking: a subscriber whose buffer
// is full misses it and catches up on the next one for that element.
type MemoryStore struct {
	mu    sync.Mutex
	byKey map[string]Snapshot
	subs  []chan Snapshot
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]Snapshot)}
}

// Update records snap unless a newer snapshot of the same element is
// already stored.
func (m *MemoryStore) Update(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byKey[snap.Key]; ok && !snap.UpdatedAt.IsZero() && snap.UpdatedAt.Before(prev.UpdatedAt) {
		return
	}
	m.byKey[snap.Key] = snap

	// sends never block, so publishing under the lock cannot race Unsubscribe
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Get returns the snapshot of the element with key.
func (m *MemoryStore) Get(key string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.byKey[key]
	return snap, ok
}

// GetAll returns every element's snapshot, ordered by key.
func (m *MemoryStore) GetAll() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.byKey))
	for _, snap := range m.byKey {
		out = append(out, snap)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe returns a channel of accepted snapshots, buffered for 100.
// Release it with [MemoryStore.Unsubscribe].
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe closes ch and stops publishing to it. Unknown or already
// released channels are ignored.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.subs, func(c chan Snapshot) bool { return c == ch })
	if i < 0 {
		return
	}
	close(m.subs[i])
	m.subs = slices.Delete(m.subs, i, i+1)
}
