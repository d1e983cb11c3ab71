// Package request defines the units of work placed on a resource queue and
// the notifications the queue emits while processing them.
package request

import (
	"calsync/internal/domain"
	"calsync/internal/remote"
)

type Kind string

const (
	KindLabelUpdate         Kind = "label_update"
	KindSetConfirmation     Kind = "set_confirmation"
	KindSetConfirmationPref Kind = "set_confirmation_pref"
	KindSetFeedbackPref     Kind = "set_feedback_pref"
	KindFetchByRange        Kind = "fetch_by_range"
	KindFetchByID           Kind = "fetch_by_id"
)

// IsPush reports whether requests of kind k mutate server state.
func IsPush(k Kind) bool {
	switch k {
	case KindLabelUpdate, KindSetConfirmation, KindSetConfirmationPref, KindSetFeedbackPref:
		return true
	}
	return false
}

// Deps are the collaborators a request needs, captured when it is enqueued.
type Deps struct {
	ResourceID string
	API        remote.API
	Sink       Sink
}

// Request is implemented only by the types in this package.
type Request interface {
	Kind() Kind
	Dependencies() Deps
	isRequest()
}

type LabelUpdate struct {
	Deps
	ID     string
	Labels *[]string
	Hidden *bool
}

type SetConfirmation struct {
	Deps
	EventID string
	Value   bool
}

type SetConfirmationPref struct {
	Deps
	EventID string
	Value   bool
}

type SetFeedbackPref struct {
	Deps
	EventID string
	Value   bool
}

type FetchByRange struct {
	Deps
	Period   domain.Period
	Filter   domain.Filter
	Priority int64
}

type FetchByID struct {
	Deps
	EventID  string
	Priority int64
	// OnIDCorrected is called when the server answers with a different
	// canonical id than the one requested.
	OnIDCorrected func(newID string)
}

func (LabelUpdate) Kind() Kind         { return KindLabelUpdate }
func (SetConfirmation) Kind() Kind     { return KindSetConfirmation }
func (SetConfirmationPref) Kind() Kind { return KindSetConfirmationPref }
func (SetFeedbackPref) Kind() Kind     { return KindSetFeedbackPref }
func (FetchByRange) Kind() Kind        { return KindFetchByRange }
func (FetchByID) Kind() Kind           { return KindFetchByID }

func (d Deps) Dependencies() Deps { return d }

func (LabelUpdate) isRequest()         {}
func (SetConfirmation) isRequest()     {}
func (SetConfirmationPref) isRequest() {}
func (SetFeedbackPref) isRequest()     {}
func (FetchByRange) isRequest()        {}
func (FetchByID) isRequest()           {}

// Priority returns the scheduling priority of a fetch request, or 0 for
// anything else.
func Priority(r Request) int64 {
	switch v := r.(type) {
	case FetchByRange:
		return v.Priority
	case FetchByID:
		return v.Priority
	}
	return 0
}
