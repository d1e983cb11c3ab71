// Package scheduler periodically refreshes a rolling window of days for every
// known resource.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"calsync/internal/domain"
	"calsync/internal/queue"
)

// Target is the part of the calendar handler the refresher drives.
type Target interface {
	Invalidate(key string, p domain.Period, filter domain.Filter)
	FetchByRange(key string, p domain.Period, filter domain.Filter) *queue.Pending
}

type Options struct {
	// Spec is a standard five-field cron expression.
	Spec string
	// Keys are always refreshed. Known adds keys discovered at runtime.
	Keys  []string
	Known func() []string
	// DaysBehind and DaysAhead bound the window around today.
	DaysBehind int
	DaysAhead  int
	Location   *time.Location
	Now        func() time.Time
}

type Service struct {
	target Target
	opts   Options
	cron   *cron.Cron
	stop   chan struct{}
	once   sync.Once
}

func NewService(target Target, opts Options) (*Service, error) {
	if target == nil {
		return nil, errors.New("scheduler: target is required")
	}
	if err := ValidateCronExpression(opts.Spec); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DaysBehind < 0 {
		opts.DaysBehind = 0
	}
	if opts.DaysAhead < 0 {
		opts.DaysAhead = 0
	}
	return &Service{
		target: target,
		opts:   opts,
		cron:   cron.New(cron.WithLocation(opts.Location)),
		stop:   make(chan struct{}),
	}, nil
}

// Start runs the schedule until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.opts.Spec, func() { s.Refresh(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("spec", s.opts.Spec).Int("behind", s.opts.DaysBehind).Int("ahead", s.opts.DaysAhead).Msg("refresh schedule started")

	select {
	case <-ctx.Done():
	case <-s.stop:
	}
	<-s.cron.Stop().Done()
	return nil
}

func (s *Service) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Window is the period refreshed when the clock reads now.
func (s *Service) Window(now time.Time) domain.Period {
	today := domain.DayOf(now, s.opts.Location)
	return domain.Period{
		Start: today - domain.Day(s.opts.DaysBehind),
		End:   today + domain.Day(s.opts.DaysAhead),
	}
}

// Keys returns the configured and discovered keys, deduplicated and sorted.
func (s *Service) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range s.opts.Keys {
		add(k)
	}
	if s.opts.Known != nil {
		for _, k := range s.opts.Known() {
			add(k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Refresh invalidates the window for every key and refetches it. It waits
// for all fetches and returns how many keys failed.
func (s *Service) Refresh(ctx context.Context) int {
	window := s.Window(s.opts.Now())
	keys := s.Keys()

	pending := make([]*queue.Pending, len(keys))
	for i, key := range keys {
		s.target.Invalidate(key, window, nil)
		pending[i] = s.target.FetchByRange(key, window, nil)
	}

	failed := 0
	for i, p := range pending {
		if err := p.Wait(ctx); err != nil {
			failed++
			log.Error().Err(err).Str("resource", keys[i]).Str("window", window.String()).Msg("refresh failed")
		}
	}
	log.Info().Int("resources", len(keys)).Int("failed", failed).Str("window", window.String()).Msg("refresh finished")
	return failed
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	cronSchedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return cronSchedule.Next(from), nil
}
