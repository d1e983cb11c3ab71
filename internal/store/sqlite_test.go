package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/domain"
)

func openTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepo(db)
}

var may1 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestCreateAndGetEvent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	ev, err := repo.CreateEvent(ctx, domain.Event{ResourceID: "team-1", Title: "standup", Start: may1, Labels: []string{"x"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ev.ID, "evt_"))

	got, err := repo.GetEvent(ctx, "team-1", ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup", got.Title)
	assert.Equal(t, []string{"x"}, got.Labels)
	assert.True(t, got.Start.Equal(may1))

	_, err = repo.GetEvent(ctx, "team-2", ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetEventResolvesOccurrenceToSeries(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.CreateEvent(ctx, domain.Event{ID: "series", ResourceID: "team-1", Start: may1})
	require.NoError(t, err)

	got, err := repo.GetEvent(ctx, "team-1", "series_20240508")
	require.NoError(t, err)
	assert.Equal(t, "series", got.ID)

	_, err = repo.GetEvent(ctx, "team-1", "other_20240508")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryEventsByStart(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := repo.CreateEvent(ctx, domain.Event{ResourceID: "team-1", Start: may1.AddDate(0, 0, i)})
		require.NoError(t, err)
	}

	evs, err := repo.QueryEvents(ctx, "team-1", may1.Truncate(24*time.Hour).AddDate(0, 0, 1), may1.Truncate(24*time.Hour).AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.True(t, evs[0].Start.Before(evs[1].Start))

	n, err := repo.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestApplyLabelsHiddenClearsLabels(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	ev, err := repo.CreateEvent(ctx, domain.Event{ResourceID: "team-1", Start: may1, Labels: []string{"x"}})
	require.NoError(t, err)

	require.NoError(t, repo.ApplyLabels(ctx, "team-1", []LabelChange{{ID: ev.ID, Hidden: domain.Bool(true)}}))
	got, err := repo.GetEvent(ctx, "team-1", ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Hidden)
	assert.Empty(t, got.Labels)

	require.NoError(t, repo.ApplyLabels(ctx, "team-1", []LabelChange{{ID: ev.ID, Labels: domain.Strings("a", "b")}}))
	got, err = repo.GetEvent(ctx, "team-1", ev.ID)
	require.NoError(t, err)
	assert.False(t, got.Hidden)
	assert.Equal(t, []string{"a", "b"}, got.Labels)
}

func TestApplyLabelsUnknownIDRollsBack(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	ev, err := repo.CreateEvent(ctx, domain.Event{ResourceID: "team-1", Start: may1})
	require.NoError(t, err)

	err = repo.ApplyLabels(ctx, "team-1", []LabelChange{
		{ID: ev.ID, Labels: domain.Strings("a")},
		{ID: "missing", Labels: domain.Strings("b")},
	})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetEvent(ctx, "team-1", ev.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Labels)
}

func TestFlagsApplyToSeriesMembers(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.CreateEvent(ctx, domain.Event{ID: "s", ResourceID: "team-1", Start: may1})
	require.NoError(t, err)
	_, err = repo.CreateEvent(ctx, domain.Event{ID: "s_20240508", RecurringID: "s", ResourceID: "team-1", Start: may1.AddDate(0, 0, 7)})
	require.NoError(t, err)

	require.NoError(t, repo.SetConfirmed(ctx, "team-1", "s", true))
	require.NoError(t, repo.SetFeedbackPref(ctx, "team-1", "s_20240508", true))
	require.NoError(t, repo.SetConfirmationPref(ctx, "team-1", "s", true))

	occ, err := repo.GetEvent(ctx, "team-1", "s_20240508")
	require.NoError(t, err)
	assert.True(t, occ.Confirmed)
	assert.True(t, occ.FeedbackPref)
	assert.True(t, occ.ConfirmationPref)

	series, err := repo.GetEvent(ctx, "team-1", "s")
	require.NoError(t, err)
	assert.False(t, series.FeedbackPref)

	assert.ErrorIs(t, repo.SetConfirmed(ctx, "team-1", "nope", true), ErrNotFound)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	n, err := NewSQLiteRepo(db).CountEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
