// Package freshness tracks, per resource, day and query signature, when data
// was last fetched, and works out the smallest range that needs refetching.
package freshness

import (
	"sync"
	"time"

	"calsync/internal/domain"
)

type Status int

const (
	StatusFetching Status = iota + 1
	StatusError
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusFetching:
		return "fetching"
	case StatusError:
		return "error"
	case StatusReady:
		return "ready"
	}
	return "absent"
}

type Entry struct {
	Status    Status
	FetchedAt time.Time
	Invalid   bool
}

type dayKey struct {
	day       domain.Day
	signature string
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string]map[dayKey]Entry
}

func NewIndex() *Index {
	return &Index{entries: map[string]map[dayKey]Entry{}}
}

func (ix *Index) Lookup(key string, day domain.Day, signature string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[key][dayKey{day, signature}]
	return e, ok
}

// Len counts entries stored under key.
func (ix *Index) Len(key string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries[key])
}

// MarkFetching and MarkError change only the status. The previous fetch
// time and invalid flag survive until the next MarkReady.
func (ix *Index) MarkFetching(key string, p domain.Period, signature string) {
	ix.setStatus(key, p, signature, StatusFetching)
}

func (ix *Index) MarkError(key string, p domain.Period, signature string) {
	ix.setStatus(key, p, signature, StatusError)
}

func (ix *Index) setStatus(key string, p domain.Period, signature string, status Status) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	days := ix.daysLocked(key)
	p.Each(func(d domain.Day) {
		k := dayKey{d, signature}
		e := days[k]
		e.Status = status
		days[k] = e
	})
}

func (ix *Index) MarkReady(key string, p domain.Period, signature string, at time.Time) {
	ix.set(key, p, signature, Entry{Status: StatusReady, FetchedAt: at})
}

// Invalidate flags ready entries in p as needing a refetch. An empty
// signature matches every signature.
func (ix *Index) Invalidate(key string, p domain.Period, signature string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for k, e := range ix.entries[key] {
		if !p.Contains(k.day) || (signature != "" && k.signature != signature) {
			continue
		}
		e.Invalid = true
		ix.entries[key][k] = e
	}
}

func (ix *Index) InvalidateKey(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for k, e := range ix.entries[key] {
		e.Invalid = true
		ix.entries[key][k] = e
	}
}

func (ix *Index) set(key string, p domain.Period, signature string, e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	days := ix.daysLocked(key)
	p.Each(func(d domain.Day) {
		days[dayKey{d, signature}] = e
	})
}

func (ix *Index) daysLocked(key string) map[dayKey]Entry {
	days, ok := ix.entries[key]
	if !ok {
		days = map[dayKey]Entry{}
		ix.entries[key] = days
	}
	return days
}
