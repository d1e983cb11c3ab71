// Package processor runs one queue cycle: it applies every queued mutation,
// merged per target, before letting a single read through.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"calsync/internal/request"
)

var ErrMalformedRequest = errors.New("malformed request")

type Processor struct {
	now func() time.Time
}

func New(now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{now: now}
}

// Process is a queue.ProcessFunc. Pushes in items are all sent and the
// fetches come back as leftovers; without pushes, the highest priority fetch
// runs and the other fetches come back.
func (p *Processor) Process(ctx context.Context, key string, items []request.Request) ([]request.Request, error) {
	var pushes, fetches []request.Request
	for i, it := range items {
		switch v := it.(type) {
		case request.LabelUpdate, request.SetConfirmation, request.SetConfirmationPref, request.SetFeedbackPref:
			pushes = append(pushes, it)
		case request.FetchByRange, request.FetchByID:
			fetches = append(fetches, it)
		default:
			return nil, fmt.Errorf("%w: item %d has type %T", ErrMalformedRequest, i, v)
		}
		if it.Dependencies().API == nil {
			return nil, fmt.Errorf("%w: %s request without remote api", ErrMalformedRequest, it.Kind())
		}
	}

	if len(pushes) > 0 {
		if err := p.push(ctx, key, pushes); err != nil {
			return nil, err
		}
		return fetches, nil
	}
	if len(fetches) == 0 {
		return nil, nil
	}
	return p.fetch(ctx, key, fetches), nil
}

type batcher func(ctx context.Context, deps request.Deps, items []request.Request) error

func batcherFor(k request.Kind) batcher {
	switch k {
	case request.KindLabelUpdate:
		return pushLabels
	case request.KindSetConfirmation:
		return pushConfirmations
	case request.KindSetConfirmationPref:
		return pushConfirmationPrefs
	case request.KindSetFeedbackPref:
		return pushFeedbackPrefs
	}
	return nil
}

// push runs one batcher per request kind. The kinds hit unrelated endpoints,
// so they run concurrently; an error in one does not cancel the others.
func (p *Processor) push(ctx context.Context, key string, pushes []request.Request) error {
	var order []request.Kind
	groups := map[request.Kind][]request.Request{}
	for _, it := range pushes {
		k := it.Kind()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}

	var g errgroup.Group
	for _, k := range order {
		k, items := k, groups[k]
		deps := resolveDeps(key, items[0])
		run := batcherFor(k)
		g.Go(func() error {
			started := time.Now()
			if err := run(ctx, deps, items); err != nil {
				if deps.Sink != nil {
					deps.Sink.Dispatch(request.PushFail{ResourceID: deps.ResourceID, Kind: k, Err: err})
				}
				return fmt.Errorf("push %s for %s: %w", k, deps.ResourceID, err)
			}
			log.Debug().Str("key", key).Str("kind", string(k)).Int("requests", len(items)).Dur("took", time.Since(started)).Msg("push batch sent")
			return nil
		})
	}
	return g.Wait()
}

func resolveDeps(key string, r request.Request) request.Deps {
	deps := r.Dependencies()
	if deps.ResourceID == "" {
		deps.ResourceID = key
	}
	return deps
}
