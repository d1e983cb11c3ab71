package calendar

import "calsync/internal/domain"

type Action string

const (
	ActionLabels           Action = "labels"
	ActionConfirm          Action = "confirm"
	ActionConfirmationPref Action = "confirmation_pref"
	ActionFeedbackPref     Action = "feedback_pref"
)

// RecurrenceClassifier decides whether an action on a recurring event
// targets the whole series instead of the single occurrence.
type RecurrenceClassifier interface {
	AppliesToSeries(ev domain.Event, action Action) bool
}

type ClassifierFunc func(ev domain.Event, action Action) bool

func (f ClassifierFunc) AppliesToSeries(ev domain.Event, action Action) bool { return f(ev, action) }

// SeriesWhenRecurring sends every action on a recurring occurrence to its series.
var SeriesWhenRecurring = ClassifierFunc(func(ev domain.Event, _ Action) bool {
	return ev.RecurringID != ""
})

// OccurrenceOnly never redirects to the series.
var OccurrenceOnly = ClassifierFunc(func(domain.Event, Action) bool { return false })
