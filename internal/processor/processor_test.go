package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/domain"
	"calsync/internal/remote/remotetest"
	"calsync/internal/request"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type sink struct {
	mu    sync.Mutex
	notes []request.Notification
	log   *[]string
}

func (s *sink) Dispatch(n request.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	if s.log != nil {
		*s.log = append(*s.log, "dispatch")
	}
}

func (s *sink) all() []request.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request.Notification(nil), s.notes...)
}

func setup() (*Processor, *remotetest.API, *sink, request.Deps) {
	api := remotetest.New()
	s := &sink{}
	return New(func() time.Time { return fixedNow }), api, s, request.Deps{ResourceID: "team-1", API: api, Sink: s}
}

func TestLabelHiddenOverridesEarlierLabels(t *testing.T) {
	p, api, _, deps := setup()

	left, err := p.Process(context.Background(), "team-1", []request.Request{
		request.LabelUpdate{Deps: deps, ID: "A", Labels: domain.Strings("x")},
		request.LabelUpdate{Deps: deps, ID: "A", Hidden: domain.Bool(true)},
	})
	require.NoError(t, err)
	assert.Empty(t, left)

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "labels", calls[0].Op)
	require.Len(t, calls[0].Labels.Set, 1)
	set := calls[0].Labels.Set[0]
	assert.Equal(t, "A", set.ID)
	assert.Nil(t, set.Labels)
	require.NotNil(t, set.Hidden)
	assert.True(t, *set.Hidden)
	assert.Empty(t, calls[0].Labels.Predict)
}

func TestLabelsAfterHiddenUnhide(t *testing.T) {
	batch := mergeLabels([]request.Request{
		request.LabelUpdate{ID: "A", Hidden: domain.Bool(true)},
		request.LabelUpdate{ID: "B", Labels: domain.Strings("b")},
		request.LabelUpdate{ID: "A", Labels: domain.Strings("y", "z")},
	})

	require.Len(t, batch.Set, 2)
	assert.Equal(t, "A", batch.Set[0].ID)
	assert.Equal(t, []string{"y", "z"}, *batch.Set[0].Labels)
	assert.False(t, *batch.Set[0].Hidden)
	assert.Equal(t, "B", batch.Set[1].ID)
	assert.Equal(t, []string{"A", "B"}, batch.Predict)
}

func TestLabelsAndHiddenInOneUpdateHides(t *testing.T) {
	batch := mergeLabels([]request.Request{
		request.LabelUpdate{ID: "A", Labels: domain.Strings("x"), Hidden: domain.Bool(true)},
	})
	require.Len(t, batch.Set, 1)
	assert.Nil(t, batch.Set[0].Labels)
	assert.True(t, *batch.Set[0].Hidden)
}

func TestPushesRunBeforeFetches(t *testing.T) {
	p, api, _, deps := setup()
	fetch := request.FetchByRange{Deps: deps, Period: domain.Period{Start: 1, End: 3}, Priority: 500}

	left, err := p.Process(context.Background(), "team-1", []request.Request{
		fetch,
		request.SetConfirmation{Deps: deps, EventID: "e1", Value: true},
		request.LabelUpdate{Deps: deps, ID: "e2", Labels: domain.Strings("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, []request.Request{fetch}, left)
	assert.NotContains(t, api.Ops(), "query")
	assert.ElementsMatch(t, []string{"batch", "confirm", "labels"}, api.Ops())

	left, err = p.Process(context.Background(), "team-1", left)
	require.NoError(t, err)
	assert.Empty(t, left)
	ops := api.Ops()
	assert.Equal(t, "query", ops[len(ops)-1])
}

func TestOnlyHighestPriorityFetchRuns(t *testing.T) {
	p, api, s, deps := setup()
	low := request.FetchByRange{Deps: deps, Period: domain.Period{Start: 1, End: 1}, Priority: 100}
	high := request.FetchByRange{Deps: deps, Period: domain.Period{Start: 2, End: 2}, Priority: 200}

	left, err := p.Process(context.Background(), "team-1", []request.Request{low, high})
	require.NoError(t, err)
	assert.Equal(t, []request.Request{low}, left)

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.Day(2), calls[0].Query.Start)

	left, err = p.Process(context.Background(), "team-1", left)
	require.NoError(t, err)
	assert.Empty(t, left)
	calls = api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, domain.Day(1), calls[1].Query.Start)

	notes := s.all()
	require.Len(t, notes, 2)
	end, ok := notes[0].(request.FetchEnd)
	require.True(t, ok)
	assert.Equal(t, []domain.Period{{Start: 2, End: 2}}, end.Periods)
	assert.Equal(t, fixedNow, end.At)
}

func TestEqualPriorityKeepsArrivalOrder(t *testing.T) {
	p, api, _, deps := setup()
	a := request.FetchByRange{Deps: deps, Period: domain.Period{Start: 1, End: 1}, Priority: 7}
	b := request.FetchByRange{Deps: deps, Period: domain.Period{Start: 2, End: 2}, Priority: 7}

	left, err := p.Process(context.Background(), "team-1", []request.Request{a, b})
	require.NoError(t, err)
	assert.Equal(t, []request.Request{b}, left)
	assert.Equal(t, domain.Day(1), api.Calls()[0].Query.Start)
}

func TestFetchFailureIsDispatchedNotReturned(t *testing.T) {
	p, api, s, deps := setup()
	api.SetFail("query", errors.New("503"))

	left, err := p.Process(context.Background(), "team-1", []request.Request{
		request.FetchByRange{Deps: deps, Period: domain.Period{Start: 4, End: 5}, Filter: domain.Filter{"label": "x"}},
	})
	require.NoError(t, err)
	assert.Empty(t, left)

	notes := s.all()
	require.Len(t, notes, 1)
	fail, ok := notes[0].(request.FetchFail)
	require.True(t, ok)
	assert.Equal(t, []domain.Period{{Start: 4, End: 5}}, fail.Periods)
	assert.Equal(t, domain.Filter{"label": "x"}, fail.Filter)
	assert.EqualError(t, fail.Err, "503")
}

func TestPushFailureFailsCycle(t *testing.T) {
	p, api, s, deps := setup()
	boom := errors.New("labels down")
	api.SetFail("labels", boom)

	_, err := p.Process(context.Background(), "team-1", []request.Request{
		request.LabelUpdate{Deps: deps, ID: "A", Labels: domain.Strings("x")},
		request.SetFeedbackPref{Deps: deps, EventID: "A", Value: true},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, api.Ops(), "feedback_pref")

	var fails []request.PushFail
	for _, n := range s.all() {
		if f, ok := n.(request.PushFail); ok {
			fails = append(fails, f)
		}
	}
	require.Len(t, fails, 1)
	assert.Equal(t, request.KindLabelUpdate, fails[0].Kind)
}

func TestTogglesKeepLastValuePerID(t *testing.T) {
	p, api, _, deps := setup()

	_, err := p.Process(context.Background(), "team-1", []request.Request{
		request.SetConfirmation{Deps: deps, EventID: "e1", Value: true},
		request.SetConfirmation{Deps: deps, EventID: "e2", Value: true},
		request.SetConfirmation{Deps: deps, EventID: "e1", Value: false},
	})
	require.NoError(t, err)

	var got []string
	for _, c := range api.Calls() {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{"batch", "unconfirm e1 false", "confirm e2 true"}, got)
}

func TestPreferenceBatchers(t *testing.T) {
	p, api, _, deps := setup()

	_, err := p.Process(context.Background(), "team-1", []request.Request{
		request.SetConfirmationPref{Deps: deps, EventID: "e1", Value: true},
		request.SetConfirmationPref{Deps: deps, EventID: "e1", Value: false},
	})
	require.NoError(t, err)
	_, err = p.Process(context.Background(), "team-1", []request.Request{
		request.SetFeedbackPref{Deps: deps, EventID: "e9", Value: true},
	})
	require.NoError(t, err)

	var got []string
	for _, c := range api.Calls() {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{"batch", "confirmation_pref e1 false", "batch", "feedback_pref e9 true"}, got)
}

func TestFetchByIDCorrectsID(t *testing.T) {
	p, api, s, deps := setup()
	var order []string
	s.log = &order
	api.Events["series-1"] = domain.Event{ID: "series-1", Title: "standup"}
	api.Alias["series-1_20240501"] = "series-1"

	var corrected string
	_, err := p.Process(context.Background(), "team-1", []request.Request{
		request.FetchByID{Deps: deps, EventID: "series-1_20240501", OnIDCorrected: func(id string) {
			corrected = id
			order = append(order, "corrected")
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "series-1", corrected)
	assert.Equal(t, []string{"dispatch", "corrected", "dispatch"}, order)

	notes := s.all()
	start, ok := notes[0].(request.FetchStart)
	require.True(t, ok)
	assert.Equal(t, []string{"series-1"}, start.IDs)
	end, ok := notes[1].(request.FetchEnd)
	require.True(t, ok)
	assert.Equal(t, []string{"series-1_20240501", "series-1"}, end.IDs)
	require.Len(t, end.Events, 1)
}

func TestFetchByIDNotFound(t *testing.T) {
	p, _, s, deps := setup()
	_, err := p.Process(context.Background(), "team-1", []request.Request{
		request.FetchByID{Deps: deps, EventID: "missing"},
	})
	require.NoError(t, err)
	end, ok := s.all()[0].(request.FetchEnd)
	require.True(t, ok)
	assert.Equal(t, []string{"missing"}, end.IDs)
	assert.Empty(t, end.Events)
}

func TestMalformedRequests(t *testing.T) {
	p, _, _, _ := setup()

	_, err := p.Process(context.Background(), "team-1", []request.Request{nil})
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = p.Process(context.Background(), "team-1", []request.Request{request.SetFeedbackPref{EventID: "x"}})
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestResourceIDDefaultsToKey(t *testing.T) {
	p, api, _, _ := setup()
	_, err := p.Process(context.Background(), "team-7", []request.Request{
		request.SetFeedbackPref{Deps: request.Deps{API: api}, EventID: "x", Value: true},
	})
	require.NoError(t, err)
	for _, c := range api.Calls() {
		if c.Op == "feedback_pref" {
			assert.Equal(t, "team-7", c.ResourceID)
		}
	}
}
