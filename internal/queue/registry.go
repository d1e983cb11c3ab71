package queue

import (
	"context"
	"sort"
	"sync"
)

// Registry hands out one TaskQueue per resource key.
type Registry struct {
	ctx     context.Context
	process ProcessFunc

	mu     sync.Mutex
	queues map[string]*TaskQueue
}

func NewRegistry(ctx context.Context, process ProcessFunc) *Registry {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Registry{ctx: ctx, process: process, queues: map[string]*TaskQueue{}}
}

func (r *Registry) Get(key string) *TaskQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[key]
	if !ok {
		q = newTaskQueue(r.ctx, key, r.process)
		r.queues[key] = q
	}
	return q
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.queues))
	for k := range r.queues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
