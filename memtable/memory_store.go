package memtable

import "iter"

// MemoryStore is the Database's in-memory, ordered key-value table. It
// wraps a SkipList[string, string] rather than a hash map so that Iter
// yields ascending key order, which segment construction depends on.
type MemoryStore struct {
	sl    *SkipList[string, string]
	usage int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sl: NewSkipListMemtable[string, string]()}
}

// Set inserts or updates key. If key was already present, usage moves by
// the difference in value length only; otherwise usage grows by the full
// key+value length.
func (m *MemoryStore) Set(key, value string) {
	if prev, ok := m.sl.Get(key); ok {
		m.usage += len(value) - len(prev)
	} else {
		m.usage += len(key) + len(value)
	}
	m.sl.Put(key, value)
}

// Get returns the current value for key, if present.
func (m *MemoryStore) Get(key string) (string, bool) {
	return m.sl.Get(key)
}

// Iter yields (key, value) pairs in ascending key order.
func (m *MemoryStore) Iter() iter.Seq[Record[string, string]] {
	return m.sl.Iterator()
}

// Iter2 yields the same (key, value) pairs as Iter, in the two-argument
// iterator shape segment.Create expects as its sorted input stream.
func (m *MemoryStore) Iter2() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for rec := range m.sl.Iterator() {
			if !yield(rec.Key, rec.Value) {
				return
			}
		}
	}
}

// Usage returns the current byte-count of logical memory usage, as defined
// by spec.md §3: the sum of len(key)+len(value) over present entries.
func (m *MemoryStore) Usage() int {
	return m.usage
}
