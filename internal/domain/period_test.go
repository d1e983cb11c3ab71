package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOfNormalizesToMidnight(t *testing.T) {
	a := DayOf(time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC), time.UTC)
	b := DayOf(time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), time.UTC)
	assert.Equal(t, a, b)
	assert.Equal(t, "2024-03-10", a.String())
}

func TestDayOfRespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	ts := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-11", DayOf(ts, loc).String())
}

func TestParseDayRoundTrip(t *testing.T) {
	d, err := ParseDay("2023-12-31")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", d.String())
	assert.Equal(t, "2024-01-01", (d + 1).String())

	_, err = ParseDay("not-a-day")
	assert.Error(t, err)
}

func TestPeriodOfSwapsReversedBounds(t *testing.T) {
	start := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	p := PeriodOf(start, end, time.UTC)
	assert.Equal(t, 7, p.Days())
	assert.Equal(t, "2024-01-01..2024-01-07", p.String())
}

func TestPeriodEach(t *testing.T) {
	p := Period{Start: 10, End: 12}
	var got []Day
	p.Each(func(d Day) { got = append(got, d) })
	assert.Equal(t, []Day{10, 11, 12}, got)
	assert.True(t, p.Contains(11))
	assert.False(t, p.Contains(13))
}

func TestFilterSignatureIsOrderIndependent(t *testing.T) {
	a := Filter{"label": "x", "hidden": "false"}
	b := Filter{"hidden": "false", "label": "x"}
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, "{}", Filter(nil).Signature())
}

func TestPatchApply(t *testing.T) {
	ev := Event{ID: "a", Labels: []string{"old"}, Hidden: true}
	out := Patch{Labels: Strings("new"), Hidden: Bool(false), Confirmed: Bool(true)}.Apply(ev)
	assert.Equal(t, []string{"new"}, out.Labels)
	assert.False(t, out.Hidden)
	assert.True(t, out.Confirmed)
	assert.Equal(t, []string{"old"}, ev.Labels)
}
