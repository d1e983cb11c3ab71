package domain

import (
	"encoding/json"
	"time"
)

type Event struct {
	ID               string    `json:"id"`
	RecurringID      string    `json:"recurring_id,omitempty"`
	ResourceID       string    `json:"resource_id"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Labels           []string  `json:"labels"`
	Hidden           bool      `json:"hidden"`
	Confirmed        bool      `json:"confirmed"`
	ConfirmationPref bool      `json:"confirmation_pref"`
	FeedbackPref     bool      `json:"feedback_pref"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Patch is an optimistic local change. Nil fields are left untouched.
type Patch struct {
	Labels           *[]string
	Hidden           *bool
	Confirmed        *bool
	ConfirmationPref *bool
	FeedbackPref     *bool
}

func (p Patch) Apply(ev Event) Event {
	if p.Labels != nil {
		ev.Labels = append([]string(nil), (*p.Labels)...)
	}
	if p.Hidden != nil {
		ev.Hidden = *p.Hidden
	}
	if p.Confirmed != nil {
		ev.Confirmed = *p.Confirmed
	}
	if p.ConfirmationPref != nil {
		ev.ConfirmationPref = *p.ConfirmationPref
	}
	if p.FeedbackPref != nil {
		ev.FeedbackPref = *p.FeedbackPref
	}
	return ev
}

// Filter narrows an event query. Keys understood by the server are "label"
// and "hidden".
type Filter map[string]string

// Signature is the canonical form used to key cache entries. encoding/json
// sorts map keys, so equal filters always sign the same.
func (f Filter) Signature() string {
	if len(f) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]string(f))
	if err != nil {
		return "{}"
	}
	return string(b)
}

func Bool(v bool) *bool { return &v }

func Strings(v ...string) *[]string {
	if v == nil {
		v = []string{}
	}
	return &v
}
