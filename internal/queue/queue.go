package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"calsync/internal/request"
)

// ProcessFunc runs one cycle over a snapshot of queued requests and returns
// the requests it deferred to the next cycle.
type ProcessFunc func(ctx context.Context, key string, items []request.Request) ([]request.Request, error)

type state int

const (
	stateIdle state = iota
	stateDraining
)

// TaskQueue serializes the requests for one resource key. At most one cycle
// runs at a time; requests enqueued meanwhile join the next cycle.
type TaskQueue struct {
	key     string
	ctx     context.Context
	process ProcessFunc

	mu      sync.Mutex
	items   []request.Request
	state   state
	current *Pending
}

func newTaskQueue(ctx context.Context, key string, process ProcessFunc) *TaskQueue {
	return &TaskQueue{key: key, ctx: ctx, process: process}
}

func (q *TaskQueue) Key() string { return q.key }

// Enqueue appends item and starts draining if the queue is idle. The returned
// Pending completes once the queue is empty, or fails with the error of the
// cycle that was running.
func (q *TaskQueue) Enqueue(item request.Request) *Pending {
	q.mu.Lock()
	q.items = append(q.items, item)
	if q.state == stateDraining {
		p := q.current
		q.mu.Unlock()
		return p
	}
	q.state = stateDraining
	q.current = newPending()
	p := q.current
	q.mu.Unlock()

	go q.drain(p)
	return p
}

func (q *TaskQueue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == stateDraining
}

// Drained returns the completion signal of the running drain, or a resolved
// one when the queue is idle.
func (q *TaskQueue) Drained() *Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == stateDraining && q.current != nil {
		return q.current
	}
	return Resolved()
}

// Resume restarts draining when a failed cycle left requests behind. It
// returns the running drain's signal, or a resolved one when there is
// nothing to do.
func (q *TaskQueue) Resume() *Pending {
	q.mu.Lock()
	if q.state == stateDraining && q.current != nil {
		p := q.current
		q.mu.Unlock()
		return p
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Resolved()
	}
	q.state = stateDraining
	q.current = newPending()
	p := q.current
	pending := len(q.items)
	q.mu.Unlock()

	log.Debug().Str("key", q.key).Int("pending", pending).Msg("queue resumed")
	go q.drain(p)
	return p
}

// Len reports how many requests wait for the next cycle.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot copies the requests waiting for the next cycle.
func (q *TaskQueue) Snapshot() []request.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]request.Request(nil), q.items...)
}

func (q *TaskQueue) drain(p *Pending) {
	for cycle := 1; ; cycle++ {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		started := time.Now()
		leftovers, err := q.run(batch)

		q.mu.Lock()
		if err != nil {
			restored := make([]request.Request, 0, len(batch)+len(q.items))
			restored = append(restored, batch...)
			q.items = append(restored, q.items...)
			q.state = stateIdle
			q.current = nil
			pending := len(q.items)
			q.mu.Unlock()

			log.Warn().Err(err).Str("key", q.key).Int("cycle", cycle).Int("restored", pending).Msg("queue cycle failed")
			p.finish(err)
			return
		}
		next := make([]request.Request, 0, len(leftovers)+len(q.items))
		next = append(next, leftovers...)
		q.items = append(next, q.items...)
		remaining := len(q.items)
		if remaining == 0 {
			q.state = stateIdle
			q.current = nil
		}
		q.mu.Unlock()

		log.Debug().
			Str("key", q.key).
			Int("cycle", cycle).
			Int("batch", len(batch)).
			Int("leftovers", len(leftovers)).
			Int("remaining", remaining).
			Dur("took", time.Since(started)).
			Msg("queue cycle done")

		if remaining == 0 {
			p.finish(nil)
			return
		}
	}
}

func (q *TaskQueue) run(batch []request.Request) (leftovers []request.Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue %s: processing panicked: %v", q.key, r)
		}
	}()
	return q.process(q.ctx, q.key, batch)
}
