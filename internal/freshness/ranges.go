package freshness

import (
	"time"

	"calsync/internal/domain"
)

func needsFetch(e Entry, ok bool, now time.Time, ttl time.Duration) bool {
	if !ok {
		return true
	}
	switch e.Status {
	case StatusFetching:
		return false
	case StatusReady:
		if e.Invalid {
			return true
		}
		return ttl > 0 && now.Sub(e.FetchedAt) > ttl
	}
	return true
}

// RangesToUpdate returns the smallest contiguous part of p that holds every
// day needing a fetch. Fresh days between two stale ones are included.
// ok is false when nothing in p needs fetching. A zero ttl never expires.
func (ix *Index) RangesToUpdate(key string, p domain.Period, signature string, now time.Time, ttl time.Duration) (domain.Period, bool) {
	if p.Days() == 0 {
		return domain.Period{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	days := ix.entries[key]
	if len(days) == 0 {
		return p, true
	}
	stale := func(d domain.Day) bool {
		e, ok := days[dayKey{d, signature}]
		return needsFetch(e, ok, now, ttl)
	}

	minDay := p.Start
	for ; minDay <= p.End; minDay++ {
		if stale(minDay) {
			break
		}
	}
	if minDay > p.End {
		return domain.Period{}, false
	}
	maxDay := p.End
	for ; maxDay > minDay; maxDay-- {
		if stale(maxDay) {
			break
		}
	}
	return domain.Period{Start: minDay, End: maxDay}, true
}

// Chunk splits p into consecutive periods of at most maxDays days.
func Chunk(p domain.Period, maxDays int) []domain.Period {
	if p.Days() == 0 {
		return nil
	}
	if maxDays <= 0 || p.Days() <= maxDays {
		return []domain.Period{p}
	}
	var out []domain.Period
	for start := p.Start; start <= p.End; start += domain.Day(maxDays) {
		end := start + domain.Day(maxDays) - 1
		if end > p.End {
			end = p.End
		}
		out = append(out, domain.Period{Start: start, End: end})
	}
	return out
}

// Updates chunks p by maxDays and trims each chunk on its own.
func (ix *Index) Updates(key string, p domain.Period, signature string, now time.Time, ttl time.Duration, maxDays int) []domain.Period {
	var out []domain.Period
	for _, chunk := range Chunk(p, maxDays) {
		if r, ok := ix.RangesToUpdate(key, chunk, signature, now, ttl); ok {
			out = append(out, r)
		}
	}
	return out
}
