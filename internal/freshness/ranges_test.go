package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/domain"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func period(start, end domain.Day) domain.Period {
	return domain.Period{Start: start, End: end}
}

func TestRangesToUpdateWithoutEntriesReturnsWholePeriod(t *testing.T) {
	ix := NewIndex()
	p := period(100, 130)
	got, ok := ix.RangesToUpdate("team-1", p, "{}", now, time.Hour)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestRangesToUpdateTrimsToStaleCore(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 7), "{}", now.Add(-time.Minute))
	ix.Invalidate("team-1", period(3, 4), "{}")

	got, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, time.Hour)
	require.True(t, ok)
	assert.Equal(t, period(3, 4), got)
}

func TestRangesToUpdateIncludesSandwichedFreshDays(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 7), "{}", now)
	ix.MarkError("team-1", period(2, 2), "{}")
	ix.Invalidate("team-1", period(6, 6), "{}")

	got, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, 0)
	require.True(t, ok)
	assert.Equal(t, period(2, 6), got)
}

func TestRangesToUpdateAllFresh(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 7), "{}", now)
	_, ok := ix.RangesToUpdate("team-1", period(2, 5), "{}", now, time.Hour)
	assert.False(t, ok)
}

func TestRangesToUpdateTreatsFetchingAsCovered(t *testing.T) {
	ix := NewIndex()
	ix.MarkFetching("team-1", period(1, 7), "{}")
	_, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, time.Hour)
	assert.False(t, ok)
}

func TestRangesToUpdateHonorsTTL(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 3), "{}", now.Add(-2*time.Hour))
	ix.MarkReady("team-1", period(4, 7), "{}", now)

	got, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, time.Hour)
	require.True(t, ok)
	assert.Equal(t, period(1, 3), got)

	_, ok = ix.RangesToUpdate("team-1", period(1, 7), "{}", now, 0)
	assert.False(t, ok)
}

func TestRangesToUpdateSeparatesSignatures(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 7), `{"label":"x"}`, now)

	got, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, 0)
	require.True(t, ok)
	assert.Equal(t, period(1, 7), got)

	_, ok = ix.RangesToUpdate("team-1", period(1, 7), `{"label":"x"}`, now, 0)
	assert.False(t, ok)
}

func TestRangesToUpdateSingleStaleDayAtEnd(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 6), "{}", now)
	got, ok := ix.RangesToUpdate("team-1", period(1, 7), "{}", now, 0)
	require.True(t, ok)
	assert.Equal(t, period(7, 7), got)
}

func TestInvalidateKeyMarksEverySignature(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("team-1", period(1, 2), "{}", now)
	ix.MarkReady("team-1", period(1, 2), `{"label":"x"}`, now)
	ix.MarkReady("team-2", period(1, 2), "{}", now)
	ix.InvalidateKey("team-1")

	e, ok := ix.Lookup("team-1", 1, `{"label":"x"}`)
	require.True(t, ok)
	assert.True(t, e.Invalid)

	e, ok = ix.Lookup("team-2", 1, "{}")
	require.True(t, ok)
	assert.False(t, e.Invalid)
}

func TestFailedRefetchKeepsFetchTime(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("k", period(1, 2), "{}", now)
	ix.Invalidate("k", period(1, 1), "{}")

	ix.MarkFetching("k", period(1, 2), "{}")
	e, _ := ix.Lookup("k", 1, "{}")
	assert.Equal(t, StatusFetching, e.Status)
	assert.Equal(t, now, e.FetchedAt)
	assert.True(t, e.Invalid)

	ix.MarkError("k", period(1, 2), "{}")
	e, _ = ix.Lookup("k", 1, "{}")
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, now, e.FetchedAt)
	assert.True(t, e.Invalid)

	got, ok := ix.RangesToUpdate("k", period(1, 2), "{}", now, 0)
	require.True(t, ok)
	assert.Equal(t, period(1, 2), got)

	ix.MarkReady("k", period(1, 2), "{}", now.Add(time.Minute))
	e, _ = ix.Lookup("k", 1, "{}")
	assert.False(t, e.Invalid)
	assert.Equal(t, now.Add(time.Minute), e.FetchedAt)
}

func TestFetchingOnNewDayHasNoFetchTime(t *testing.T) {
	ix := NewIndex()
	ix.MarkFetching("k", period(3, 3), "{}")
	e, ok := ix.Lookup("k", 3, "{}")
	require.True(t, ok)
	assert.Equal(t, StatusFetching, e.Status)
	assert.True(t, e.FetchedAt.IsZero())
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []domain.Period{period(1, 10)}, Chunk(period(1, 10), 0))
	assert.Equal(t, []domain.Period{period(1, 4), period(5, 8), period(9, 10)}, Chunk(period(1, 10), 4))
	assert.Nil(t, Chunk(period(5, 4), 3))
}

func TestUpdatesTrimsEachChunk(t *testing.T) {
	ix := NewIndex()
	ix.MarkReady("k", period(1, 14), "{}", now)
	ix.Invalidate("k", period(2, 2), "{}")
	ix.Invalidate("k", period(12, 13), "{}")

	got := ix.Updates("k", period(1, 14), "{}", now, 0, 7)
	assert.Equal(t, []domain.Period{period(2, 2), period(12, 13)}, got)

	got = ix.Updates("k", period(1, 14), "{}", now, 0, 0)
	assert.Equal(t, []domain.Period{period(2, 13)}, got)
}
