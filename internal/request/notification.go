package request

import (
	"time"

	"calsync/internal/domain"
)

// Notification is implemented only by the types in this package.
type Notification interface {
	Resource() string
	isNotification()
}

// Sink receives notifications. Dispatch must not block on network I/O.
type Sink interface {
	Dispatch(n Notification)
}

type SinkFunc func(n Notification)

func (f SinkFunc) Dispatch(n Notification) { f(n) }

type FetchStart struct {
	ResourceID string
	IDs        []string
	Periods    []domain.Period
	Filter     domain.Filter
}

type FetchEnd struct {
	ResourceID string
	IDs        []string
	Periods    []domain.Period
	Filter     domain.Filter
	Events     []domain.Event
	At         time.Time
}

type FetchFail struct {
	ResourceID string
	IDs        []string
	Periods    []domain.Period
	Filter     domain.Filter
	Err        error
}

type EntityUpdate struct {
	ResourceID string
	IDs        []string
	Patch      domain.Patch
}

type PushFail struct {
	ResourceID string
	Kind       Kind
	Err        error
}

func (n FetchStart) Resource() string   { return n.ResourceID }
func (n FetchEnd) Resource() string     { return n.ResourceID }
func (n FetchFail) Resource() string    { return n.ResourceID }
func (n EntityUpdate) Resource() string { return n.ResourceID }
func (n PushFail) Resource() string     { return n.ResourceID }

func (FetchStart) isNotification()   {}
func (FetchEnd) isNotification()     {}
func (FetchFail) isNotification()    {}
func (EntityUpdate) isNotification() {}
func (PushFail) isNotification()     {}
