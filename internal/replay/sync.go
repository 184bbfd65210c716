package replay

import (
	"context"
	"time"
)

// Synchronizer picks the shared start instant of a replay: the next boundary
// of Interval strictly after now, counted from midnight in Location.
// With the default one minute interval that is the start of the next minute,
// even when now already sits exactly on a minute.
type Synchronizer struct {
	Interval time.Duration
	Location *time.Location
}

func NewSynchronizer(interval time.Duration, loc *time.Location) *Synchronizer {
	if loc == nil {
		loc = time.Local
	}
	return &Synchronizer{
		Interval: interval,
		Location: loc,
	}
}

// Next returns the start instant for a replay beginning at now.
// A non-positive Interval disables alignment and returns now.
func (s *Synchronizer) Next(now time.Time) time.Time {
	if s.Interval <= 0 {
		return now
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	// Truncate in absolute time; rebuilding the wall clock with time.Date
	// picks the wrong instant inside a repeated DST hour.
	if s.Interval == time.Minute {
		intoMinute := time.Duration(local.Second())*time.Second + time.Duration(local.Nanosecond())
		return local.Add(-intoMinute).Add(time.Minute)
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	elapsed := local.Sub(midnight)
	return midnight.Add((elapsed/s.Interval + 1) * s.Interval)
}

// Wait blocks until start. It returns immediately when start is not in the future.
func (s *Synchronizer) Wait(ctx context.Context, clock Clock, start time.Time) error {
	wait := start.Sub(clock.Now())
	if wait <= 0 {
		return nil
	}
	return clock.Sleep(ctx, wait)
}
