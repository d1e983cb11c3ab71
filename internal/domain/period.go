package domain

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day counts calendar days since 1970-01-01.
type Day int32

func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	u := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Day(u.Unix() / 86400)
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", s, err)
	}
	return DayOf(t, time.UTC), nil
}

// Time returns midnight of d in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	u := time.Unix(int64(d)*86400, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

func (d Day) String() string { return d.Time(time.UTC).Format(dayLayout) }

// Period is an inclusive range of days.
type Period struct {
	Start Day `json:"start"`
	End   Day `json:"end"`
}

// PeriodOf normalizes an arbitrary time range to whole days.
func PeriodOf(start, end time.Time, loc *time.Location) Period {
	p := Period{Start: DayOf(start, loc), End: DayOf(end, loc)}
	if p.End < p.Start {
		p.Start, p.End = p.End, p.Start
	}
	return p
}

func (p Period) Days() int {
	if p.End < p.Start {
		return 0
	}
	return int(p.End-p.Start) + 1
}

func (p Period) Contains(d Day) bool { return d >= p.Start && d <= p.End }

func (p Period) Each(fn func(Day)) {
	for d := p.Start; d <= p.End; d++ {
		fn(d)
	}
}

func (p Period) String() string {
	return p.Start.String() + ".." + p.End.String()
}
