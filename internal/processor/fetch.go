package processor

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"calsync/internal/domain"
	"calsync/internal/remote"
	"calsync/internal/request"
)

// fetch runs the highest priority fetch and returns the rest in arrival
// order. A failed fetch is reported to the sink, never returned.
func (p *Processor) fetch(ctx context.Context, key string, fetches []request.Request) []request.Request {
	ranked := make([]int, len(fetches))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return request.Priority(fetches[ranked[a]]) > request.Priority(fetches[ranked[b]])
	})
	top := ranked[0]

	leftovers := make([]request.Request, 0, len(fetches)-1)
	for i, it := range fetches {
		if i != top {
			leftovers = append(leftovers, it)
		}
	}

	switch v := fetches[top].(type) {
	case request.FetchByRange:
		p.fetchRange(ctx, key, v)
	case request.FetchByID:
		p.fetchID(ctx, key, v)
	}
	return leftovers
}

func dispatch(deps request.Deps, n request.Notification) {
	if deps.Sink != nil {
		deps.Sink.Dispatch(n)
	}
}

func (p *Processor) fetchRange(ctx context.Context, key string, r request.FetchByRange) {
	deps := resolveDeps(key, r)
	periods := []domain.Period{r.Period}
	events, err := deps.API.QueryEvents(ctx, deps.ResourceID, remote.Query{Start: r.Period.Start, End: r.Period.End, Filter: r.Filter})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("period", r.Period.String()).Msg("range fetch failed")
		dispatch(deps, request.FetchFail{ResourceID: deps.ResourceID, Periods: periods, Filter: r.Filter, Err: err})
		return
	}
	dispatch(deps, request.FetchEnd{ResourceID: deps.ResourceID, Periods: periods, Filter: r.Filter, Events: events, At: p.now()})
}

func (p *Processor) fetchID(ctx context.Context, key string, r request.FetchByID) {
	deps := resolveDeps(key, r)
	ev, err := deps.API.GetEvent(ctx, deps.ResourceID, r.EventID)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("event_id", r.EventID).Msg("id fetch failed")
		dispatch(deps, request.FetchFail{ResourceID: deps.ResourceID, IDs: []string{r.EventID}, Err: err})
		return
	}
	if ev == nil {
		dispatch(deps, request.FetchEnd{ResourceID: deps.ResourceID, IDs: []string{r.EventID}, At: p.now()})
		return
	}

	ids := []string{r.EventID}
	if ev.ID != r.EventID {
		ids = append(ids, ev.ID)
		if r.OnIDCorrected != nil {
			// Mark the new id as loading before the caller switches to it.
			dispatch(deps, request.FetchStart{ResourceID: deps.ResourceID, IDs: []string{ev.ID}})
			r.OnIDCorrected(ev.ID)
		}
	}
	dispatch(deps, request.FetchEnd{ResourceID: deps.ResourceID, IDs: ids, Events: []domain.Event{*ev}, At: p.now()})
}
