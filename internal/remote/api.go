package remote

import (
	"context"
	"fmt"

	"calsync/internal/domain"
)

// API is the calendar backend as seen by the request queue.
type API interface {
	SetLabels(ctx context.Context, resourceID string, batch LabelBatch) error
	Confirm(ctx context.Context, resourceID, eventID string) error
	Unconfirm(ctx context.Context, resourceID, eventID string) error
	SetConfirmationPref(ctx context.Context, resourceID, eventID string, value bool) error
	SetFeedbackPref(ctx context.Context, resourceID, eventID string, value bool) error
	QueryEvents(ctx context.Context, resourceID string, q Query) ([]domain.Event, error)
	// GetEvent returns nil, nil when the event does not exist.
	GetEvent(ctx context.Context, resourceID, eventID string) (*domain.Event, error)
	// Batch groups the calls fn issues into fewer round trips.
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
}

type LabelSet struct {
	ID     string    `json:"id"`
	Labels *[]string `json:"labels,omitempty"`
	Hidden *bool     `json:"hidden,omitempty"`
}

type LabelBatch struct {
	Set     []LabelSet `json:"set"`
	Predict []string   `json:"predict"`
}

type Query struct {
	Start  domain.Day
	End    domain.Day
	Filter domain.Filter
}

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}
