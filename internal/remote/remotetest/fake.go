// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"calsync/internal/domain"
	"calsync/internal/remote"
)

type Call struct {
	Op         string
	ResourceID string
	EventID    string
	Value      bool
	Labels     remote.LabelBatch
	Query      remote.Query
}

func (c Call) String() string {
	switch c.Op {
	case "query":
		return fmt.Sprintf("query %s..%s", c.Query.Start, c.Query.End)
	case "labels", "batch":
		return c.Op
	}
	return fmt.Sprintf("%s %s %v", c.Op, c.EventID, c.Value)
}

// API records every call. Errors in Fail are returned for the matching op.
type API struct {
	mu     sync.Mutex
	calls  []Call
	Fail   map[string]error
	Events map[string]domain.Event
	// Alias maps a requested id to the canonical id GetEvent answers with.
	Alias map[string]string
	// Before, when set, runs before each call is recorded.
	Before func(op string)
}

var _ remote.API = (*API)(nil)

func New() *API {
	return &API{Fail: map[string]error{}, Events: map[string]domain.Event{}, Alias: map[string]string{}}
}

func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

func (a *API) Ops() []string {
	var out []string
	for _, c := range a.Calls() {
		out = append(out, c.Op)
	}
	return out
}

func (a *API) SetFail(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.Fail, op)
		return
	}
	a.Fail[op] = err
}

func (a *API) record(c Call) error {
	if a.Before != nil {
		a.Before(c.Op)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	return a.Fail[c.Op]
}

func (a *API) SetLabels(ctx context.Context, resourceID string, batch remote.LabelBatch) error {
	return a.record(Call{Op: "labels", ResourceID: resourceID, Labels: batch})
}

func (a *API) Confirm(ctx context.Context, resourceID, eventID string) error {
	return a.record(Call{Op: "confirm", ResourceID: resourceID, EventID: eventID, Value: true})
}

func (a *API) Unconfirm(ctx context.Context, resourceID, eventID string) error {
	return a.record(Call{Op: "unconfirm", ResourceID: resourceID, EventID: eventID})
}

func (a *API) SetConfirmationPref(ctx context.Context, resourceID, eventID string, value bool) error {
	return a.record(Call{Op: "confirmation_pref", ResourceID: resourceID, EventID: eventID, Value: value})
}

func (a *API) SetFeedbackPref(ctx context.Context, resourceID, eventID string, value bool) error {
	return a.record(Call{Op: "feedback_pref", ResourceID: resourceID, EventID: eventID, Value: value})
}

func (a *API) QueryEvents(ctx context.Context, resourceID string, q remote.Query) ([]domain.Event, error) {
	if err := a.record(Call{Op: "query", ResourceID: resourceID, Query: q}); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.Event
	for _, ev := range a.Events {
		d := domain.DayOf(ev.Start, nil)
		if d >= q.Start && d <= q.End {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (a *API) GetEvent(ctx context.Context, resourceID, eventID string) (*domain.Event, error) {
	if err := a.record(Call{Op: "get", ResourceID: resourceID, EventID: eventID}); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := eventID
	if alias, ok := a.Alias[id]; ok {
		id = alias
	}
	ev, ok := a.Events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (a *API) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := a.record(Call{Op: "batch"}); err != nil {
		return err
	}
	return fn(ctx)
}
