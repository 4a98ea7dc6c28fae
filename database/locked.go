package database

import "sync"

// Locked wraps a Database with a sync.Mutex so it can be shared across
// goroutines, such as the concurrent handlers behind cmd/flashkv-server.
// The base Database type is deliberately single-owner (spec.md §5); this
// wrapper is the opt-in for callers that need otherwise.
type Locked struct {
	mu sync.Mutex
	db *Database
}

// NewLocked wraps db for concurrent use.
func NewLocked(db *Database) *Locked {
	return &Locked{db: db}
}

func (l *Locked) Set(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Set(key, value)
}

func (l *Locked) Get(key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Get(key)
}

func (l *Locked) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Flush()
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
