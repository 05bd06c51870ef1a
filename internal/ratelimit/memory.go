package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps request records in process memory, one pruned slice per
// (class, ip) key. Suitable when the API runs as a single process; records
// older than the window are dropped on every touch so memory stays bounded
// by actual traffic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]time.Time)}
}

func key(class Class, ip string) string { return string(class) + "|" + ip }

// Add appends one record and prunes entries older than the window.
func (m *MemoryStore) Add(_ context.Context, class Class, ip string, now time.Time) error {
	k := key(class, ip)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[k] = append(prune(m.records[k], now.Add(-Window)), now)
	return nil
}

// CountSince returns the number of records at or after since.
func (m *MemoryStore) CountSince(_ context.Context, class Class, ip string, since time.Time) (int, error) {
	k := key(class, ip)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[k] = prune(m.records[k], since)
	return len(m.records[k]), nil
}

// prune drops records before cutoff. Records are appended in time order, so
// a single scan from the front suffices.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
