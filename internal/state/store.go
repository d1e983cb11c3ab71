// Package state holds the client-side view of every resource: cached events,
// per-id fetch status and the freshness index. It changes only through
// dispatched notifications.
package state

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"calsync/internal/domain"
	"calsync/internal/freshness"
	"calsync/internal/request"
)

type IDStatus int

const (
	IDUnknown IDStatus = iota
	IDFetching
	IDReady
	IDNotFound
	IDError
)

func (s IDStatus) String() string {
	switch s {
	case IDFetching:
		return "fetching"
	case IDReady:
		return "ready"
	case IDNotFound:
		return "not_found"
	case IDError:
		return "error"
	}
	return "unknown"
}

type resource struct {
	events  map[string]domain.Event
	ids     map[string]IDStatus
	pushErr error
}

type listener func(request.Notification)

type Store struct {
	loc   locator
	index *freshness.Index

	mu        sync.RWMutex
	resources map[string]*resource
	listeners []listener
}

var _ request.Sink = (*Store)(nil)

func NewStore(opts ...Option) *Store {
	s := &Store{index: freshness.NewIndex(), resources: map[string]*resource{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Index() *freshness.Index { return s.index }

// Subscribe registers fn to be called after each notification is applied.
func (s *Store) Subscribe(fn func(request.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener(fn))
}

func (s *Store) Dispatch(n request.Notification) {
	s.mu.Lock()
	r := s.resourceLocked(n.Resource())
	switch v := n.(type) {
	case request.FetchStart:
		sig := v.Filter.Signature()
		for _, p := range v.Periods {
			s.index.MarkFetching(v.ResourceID, p, sig)
		}
		for _, id := range v.IDs {
			r.ids[id] = IDFetching
		}
	case request.FetchEnd:
		s.applyFetchEnd(r, v)
	case request.FetchFail:
		sig := v.Filter.Signature()
		for _, p := range v.Periods {
			s.index.MarkError(v.ResourceID, p, sig)
		}
		for _, id := range v.IDs {
			r.ids[id] = IDError
		}
	case request.EntityUpdate:
		for _, id := range v.IDs {
			for evID, ev := range r.events {
				if ev.ID == id || ev.RecurringID == id {
					r.events[evID] = v.Patch.Apply(ev)
				}
			}
		}
	case request.PushFail:
		r.pushErr = v.Err
		log.Error().Err(v.Err).Str("key", v.ResourceID).Str("kind", string(v.Kind)).Msg("push failed")
	}
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}

func (s *Store) applyFetchEnd(r *resource, v request.FetchEnd) {
	sig := v.Filter.Signature()
	if len(v.Filter) == 0 {
		// An unfiltered range answer is complete: drop events it no longer lists.
		seen := map[string]struct{}{}
		for _, ev := range v.Events {
			seen[ev.ID] = struct{}{}
		}
		for id, ev := range r.events {
			if _, ok := seen[id]; ok {
				continue
			}
			for _, p := range v.Periods {
				if p.Contains(s.loc.day(ev.Start)) {
					delete(r.events, id)
					break
				}
			}
		}
	}
	for _, p := range v.Periods {
		s.index.MarkReady(v.ResourceID, p, sig, v.At)
	}
	for _, ev := range v.Events {
		r.events[ev.ID] = ev
	}
	status := IDReady
	if len(v.IDs) > 0 && len(v.Events) == 0 {
		status = IDNotFound
	}
	for _, id := range v.IDs {
		r.ids[id] = status
	}
}

func (s *Store) resourceLocked(key string) *resource {
	r, ok := s.resources[key]
	if !ok {
		r = &resource{events: map[string]domain.Event{}, ids: map[string]IDStatus{}}
		s.resources[key] = r
	}
	return r
}

func (s *Store) Event(key, id string) (domain.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[key]
	if !ok {
		return domain.Event{}, false
	}
	ev, ok := r.events[id]
	return ev, ok
}

// Events lists cached events starting inside p, ordered by start time.
func (s *Store) Events(key string, p domain.Period) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[key]
	if !ok {
		return nil
	}
	var out []domain.Event
	for _, ev := range r.events {
		if p.Contains(s.loc.day(ev.Start)) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (s *Store) IDStatus(key, id string) IDStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[key]
	if !ok {
		return IDUnknown
	}
	return r.ids[id]
}

// LastPushError returns the error of the most recent failed push for key.
func (s *Store) LastPushError(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[key]
	if !ok {
		return nil
	}
	return r.pushErr
}
