// Package calendar is the entry point callers use to read and change events.
// It applies changes to local state immediately, then hands the network work
// to the resource's queue.
package calendar

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"calsync/internal/domain"
	"calsync/internal/queue"
	"calsync/internal/remote"
	"calsync/internal/request"
	"calsync/internal/state"
)

var (
	ErrNothingToUpdate = errors.New("nothing to update")
	ErrMissingEventID  = errors.New("event id is required")
)

type Config struct {
	// CacheTTL is how long fetched days stay fresh. Zero never expires.
	CacheTTL time.Duration
	// MaxDaysPerFetch bounds a single range query. Zero means unbounded.
	MaxDaysPerFetch int
}

type Options struct {
	Registry   *queue.Registry
	Store      *state.Store
	API        remote.API
	Classifier RecurrenceClassifier
	Config     Config
	Now        func() time.Time
}

type Handler struct {
	registry   *queue.Registry
	store      *state.Store
	api        remote.API
	classifier RecurrenceClassifier
	cfg        Config
	now        func() time.Time

	stampMu   sync.Mutex
	lastStamp int64
}

func New(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("calendar: registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("calendar: store is required")
	}
	if opts.API == nil {
		return nil, errors.New("calendar: remote api is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = SeriesWhenRecurring
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		registry:   opts.Registry,
		store:      opts.Store,
		api:        opts.API,
		classifier: opts.Classifier,
		cfg:        opts.Config,
		now:        opts.Now,
	}, nil
}

func (h *Handler) Store() *state.Store { return h.store }

func (h *Handler) deps(key string) request.Deps {
	return request.Deps{ResourceID: key, API: h.api, Sink: h.store}
}

// stamp returns a strictly increasing millisecond timestamp.
func (h *Handler) stamp() int64 {
	h.stampMu.Lock()
	defer h.stampMu.Unlock()
	ms := h.now().UnixMilli()
	if ms <= h.lastStamp {
		ms = h.lastStamp + 1
	}
	h.lastStamp = ms
	return ms
}

// FetchByRange queues reads for the parts of p that are missing or stale.
// When everything is fresh or already queued it returns the queue's drain
// signal so callers still wait behind pending work.
func (h *Handler) FetchByRange(key string, p domain.Period, filter domain.Filter) *queue.Pending {
	q := h.registry.Get(key)
	sig := filter.Signature()
	periods := h.store.Index().Updates(key, p, sig, h.now(), h.cfg.CacheTTL, h.cfg.MaxDaysPerFetch)
	if len(periods) == 0 {
		// Days still marked fetching may belong to requests a failed cycle
		// left behind.
		return q.Resume()
	}

	h.store.Dispatch(request.FetchStart{ResourceID: key, Periods: periods, Filter: filter})
	priority := h.stamp()
	pending := make([]*queue.Pending, 0, len(periods))
	for _, sub := range periods {
		pending = append(pending, q.Enqueue(request.FetchByRange{
			Deps:     h.deps(key),
			Period:   sub,
			Filter:   filter,
			Priority: priority,
		}))
	}
	log.Debug().Str("key", key).Str("requested", p.String()).Int("ranges", len(periods)).Msg("range fetch queued")
	return queue.All(pending...)
}

// FetchByID queues a single-event read unless the id is already loaded or
// loading. force skips that check.
func (h *Handler) FetchByID(key, eventID string, force bool, onIDCorrected func(newID string)) *queue.Pending {
	if eventID == "" {
		return queue.Failed(ErrMissingEventID)
	}
	if !force {
		switch h.store.IDStatus(key, eventID) {
		case state.IDReady:
			return queue.Resolved()
		case state.IDFetching:
			h.registry.Get(key).Resume()
			return queue.Resolved()
		}
	}
	h.store.Dispatch(request.FetchStart{ResourceID: key, IDs: []string{eventID}})
	// Doubled so an id lookup beats any range query queued at the same time.
	return h.registry.Get(key).Enqueue(request.FetchByID{
		Deps:          h.deps(key),
		EventID:       eventID,
		Priority:      2 * h.stamp(),
		OnIDCorrected: onIDCorrected,
	})
}

// SetLabels replaces the labels of an event or hides it. Hiding clears labels
// and setting labels unhides, both locally and on the server.
func (h *Handler) SetLabels(key, eventID string, labels *[]string, hidden *bool) *queue.Pending {
	if eventID == "" {
		return queue.Failed(ErrMissingEventID)
	}
	if labels == nil && hidden == nil {
		return queue.Failed(ErrNothingToUpdate)
	}
	id := h.target(key, eventID, ActionLabels)

	patch := domain.Patch{Labels: labels, Hidden: hidden}
	if hidden != nil && *hidden {
		patch.Labels = domain.Strings()
	} else if labels != nil && hidden == nil {
		patch.Hidden = domain.Bool(false)
	}
	h.store.Dispatch(request.EntityUpdate{ResourceID: key, IDs: []string{id}, Patch: patch})

	return h.registry.Get(key).Enqueue(request.LabelUpdate{Deps: h.deps(key), ID: id, Labels: labels, Hidden: hidden})
}

func (h *Handler) ToggleConfirmation(key, eventID string, value bool) *queue.Pending {
	if eventID == "" {
		return queue.Failed(ErrMissingEventID)
	}
	id := h.target(key, eventID, ActionConfirm)
	h.store.Dispatch(request.EntityUpdate{ResourceID: key, IDs: []string{id}, Patch: domain.Patch{Confirmed: domain.Bool(value)}})
	return h.registry.Get(key).Enqueue(request.SetConfirmation{Deps: h.deps(key), EventID: id, Value: value})
}

func (h *Handler) ToggleConfirmationPref(key, eventID string, value bool) *queue.Pending {
	if eventID == "" {
		return queue.Failed(ErrMissingEventID)
	}
	id := h.target(key, eventID, ActionConfirmationPref)
	h.store.Dispatch(request.EntityUpdate{ResourceID: key, IDs: []string{id}, Patch: domain.Patch{ConfirmationPref: domain.Bool(value)}})
	return h.registry.Get(key).Enqueue(request.SetConfirmationPref{Deps: h.deps(key), EventID: id, Value: value})
}

func (h *Handler) ToggleFeedbackPref(key, eventID string, value bool) *queue.Pending {
	if eventID == "" {
		return queue.Failed(ErrMissingEventID)
	}
	id := h.target(key, eventID, ActionFeedbackPref)
	h.store.Dispatch(request.EntityUpdate{ResourceID: key, IDs: []string{id}, Patch: domain.Patch{FeedbackPref: domain.Bool(value)}})
	return h.registry.Get(key).Enqueue(request.SetFeedbackPref{Deps: h.deps(key), EventID: id, Value: value})
}

// Invalidate marks fetched days in p as stale for filter. A nil filter
// matches every filter.
func (h *Handler) Invalidate(key string, p domain.Period, filter domain.Filter) {
	sig := ""
	if filter != nil {
		sig = filter.Signature()
	}
	h.store.Index().Invalidate(key, p, sig)
}

func (h *Handler) InvalidateAll(key string) {
	h.store.Index().InvalidateKey(key)
}

func (h *Handler) target(key, eventID string, action Action) string {
	ev, ok := h.store.Event(key, eventID)
	if !ok || ev.RecurringID == "" {
		return eventID
	}
	if h.classifier.AppliesToSeries(ev, action) {
		return ev.RecurringID
	}
	return eventID
}
