package state

import (
	"time"

	"calsync/internal/domain"
)

type Option func(*Store)

// WithLocation sets the time zone used to place events on calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = locator{loc} }
}

type locator struct{ loc *time.Location }

func (l locator) day(t time.Time) domain.Day { return domain.DayOf(t, l.loc) }
