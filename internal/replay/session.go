package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/turbolytics/eventreplay/internal/record"
	"go.uber.org/zap"
)

const maxLineSize = 4 * 1024 * 1024

// Entry pairs a record with the instant it was originally recorded at.
// OriginalInstant is only used to compute offsets and is never sent.
type Entry struct {
	Record          *record.Record
	OriginalInstant time.Time
}

// Session is the ordered set of records to replay, in input order.
type Session struct {
	Source   string
	Entries  []Entry
	Baseline time.Time

	// Skipped counts lines dropped in lenient mode.
	Skipped int
}

func (s *Session) Len() int {
	return len(s.Entries)
}

// Offset returns how long after the baseline the i-th entry was recorded.
func (s *Session) Offset(i int) time.Duration {
	return s.Entries[i].OriginalInstant.Sub(s.Baseline)
}

type LoadOptions struct {
	// Location the recorded timestamps are read in. Defaults to time.Local.
	Location *time.Location

	// Lenient skips malformed lines instead of failing the load.
	Lenient bool

	Logger *zap.Logger
}

// Load reads newline-delimited records from r. Blank lines are ignored.
// In strict mode the first malformed line aborts the load with a *record.ParseError.
// An input without records returns ErrNoEvents.
func Load(r io.Reader, source string, opts LoadOptions) (*Session, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		Source: source,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		bs := bytes.TrimSpace(scanner.Bytes())
		if len(bs) == 0 {
			continue
		}

		rec, err := record.Parse(bs)
		if err != nil {
			perr := &record.ParseError{Line: line, Err: err}
			if !opts.Lenient {
				return nil, perr
			}
			logger.Warn("skipping malformed line",
				zap.String("source", source),
				zap.Int("line", line),
				zap.Error(err),
			)
			s.Skipped++
			continue
		}

		s.Entries = append(s.Entries, Entry{
			Record:          rec,
			OriginalInstant: OriginalInstant(rec.Timestamp(), loc),
		})
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &record.ParseError{Line: line + 1, Err: err}
		}
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	if len(s.Entries) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoEvents, source)
	}

	s.Baseline = s.Entries[0].OriginalInstant
	for _, e := range s.Entries[1:] {
		if e.OriginalInstant.Before(s.Baseline) {
			s.Baseline = e.OriginalInstant
		}
	}

	logger.Info("session loaded",
		zap.String("source", source),
		zap.Int("records", len(s.Entries)),
		zap.Int("skipped", s.Skipped),
		zap.Time("baseline", s.Baseline),
	)
	return s, nil
}

// OriginalInstant converts a millisecond timestamp into the wall-clock reading
// it shows in loc, carried without a zone. Differences between two such
// instants are wall-clock differences, so a DST change between two recorded
// events shifts their spacing by the size of the change.
func OriginalInstant(ms int64, loc *time.Location) time.Time {
	t := time.UnixMilli(ms).In(loc)
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.UTC,
	)
}
