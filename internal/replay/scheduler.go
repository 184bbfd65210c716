package replay

import (
	"context"
	"errors"
	"time"

	"github.com/turbolytics/eventreplay/internal/record"
	"go.uber.org/zap"
)

// Sink is the downstream broker client. Send is fire-and-forget per record;
// delivery problems surface from Flush.
type Sink interface {
	Send(ctx context.Context, rec *record.Record) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type Scheduler struct {
	ID           string
	Sink         Sink
	Synchronizer *Synchronizer

	clock  Clock
	logger *zap.Logger
}

type SchedulerOption func(*Scheduler)

func WithID(id string) SchedulerOption {
	return func(s *Scheduler) {
		s.ID = id
	}
}

func WithSink(sink Sink) SchedulerOption {
	return func(s *Scheduler) {
		s.Sink = sink
	}
}

func WithSynchronizer(sync *Synchronizer) SchedulerOption {
	return func(s *Scheduler) {
		s.Synchronizer = sync
	}
}

func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		Synchronizer: NewSynchronizer(time.Minute, time.Local),
		clock:        RealClock(),
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.Sink == nil {
		return nil, errors.New("scheduler requires a sink")
	}
	return s, nil
}

// Run replays the session: it waits for the next sync boundary, then sends
// every record in input order at syncStart plus its offset from the baseline.
// Records that are already late go out immediately. Each record's timestamp
// is rewritten to the send time. The sink is flushed before Run reports success;
// closing it is left to the caller.
func (s *Scheduler) Run(ctx context.Context, session *Session) (*Summary, error) {
	start := s.Synchronizer.Next(s.clock.Now())

	summary := &Summary{
		SessionID:        s.ID,
		Source:           session.Source,
		SyncStart:        start,
		NumSourceRecords: session.Len(),
	}

	s.logger.Info("waiting for sync start",
		zap.Time("sync_start", start),
		zap.Int("records", session.Len()),
	)
	if err := s.Synchronizer.Wait(ctx, s.clock, start); err != nil {
		return summary, err
	}

	s.logger.Info("starting replay", zap.String("session_id", s.ID))

	var late lateness
	finish := func(err error) (*Summary, error) {
		late.fill(summary)
		summary.EndTime = s.clock.Now()
		return summary, err
	}

	for i := range session.Entries {
		entry := &session.Entries[i]
		target := start.Add(session.Offset(i))

		wait := target.Sub(s.clock.Now())
		late.observe(wait)
		if wait > 0 {
			if err := s.clock.Sleep(ctx, wait); err != nil {
				return finish(err)
			}
		}

		sentAt := s.clock.Now()
		entry.Record.SetTimestamp(sentAt.UnixMilli())

		if err := s.Sink.Send(ctx, entry.Record); err != nil {
			return finish(&SinkError{Op: "send", Err: err})
		}
		summary.NumRecordsSent++

		s.logger.Info("sent",
			zap.String("device_id", entry.Record.DeviceID()),
			zap.String("event_type", entry.Record.EventType()),
			zap.String("sent_at", sentAt.Format(time.RFC3339Nano)),
		)
	}

	if err := s.Sink.Flush(ctx); err != nil {
		return finish(&SinkError{Op: "flush", Err: err})
	}

	summary.Completed = true
	finish(nil)

	s.logger.Info("all events sent", summary.Fields()...)
	return summary, nil
}
