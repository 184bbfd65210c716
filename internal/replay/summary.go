package replay

import (
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

/*
The summary is a record of what a replay did. It is logged when the run
ends and never persisted.
*/

type Summary struct {
	SessionID        string        `json:"session_id"`
	Source           string        `json:"source"`
	SyncStart        time.Time     `json:"sync_start"`
	EndTime          time.Time     `json:"end_time"`
	NumSourceRecords int           `json:"num_source_records"`
	NumRecordsSent   int           `json:"num_records_sent"`
	NumBehind        int           `json:"num_behind"`
	LatenessP50      time.Duration `json:"lateness_p50"`
	LatenessP99      time.Duration `json:"lateness_p99"`
	LatenessMax      time.Duration `json:"lateness_max"`
	Completed        bool          `json:"completed"`
}

// lateness collects, in milliseconds, how far past its target each record was sent.
type lateness struct {
	samples stats.Float64Data
	behind  int
}

func (l *lateness) observe(wait time.Duration) {
	late := time.Duration(0)
	if wait < 0 {
		late = -wait
		l.behind++
	}
	l.samples = append(l.samples, float64(late)/float64(time.Millisecond))
}

func (l *lateness) fill(s *Summary) {
	s.NumBehind = l.behind
	if len(l.samples) == 0 {
		return
	}

	if p50, err := stats.Percentile(l.samples, 50); err == nil {
		s.LatenessP50 = msToDuration(p50)
	}
	if p99, err := stats.Percentile(l.samples, 99); err == nil {
		s.LatenessP99 = msToDuration(p99)
	}
	if max, err := stats.Max(l.samples); err == nil {
		s.LatenessMax = msToDuration(max)
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("session_id", s.SessionID),
		zap.String("source", s.Source),
		zap.Time("sync_start", s.SyncStart),
		zap.Time("end_time", s.EndTime),
		zap.Int("num_source_records", s.NumSourceRecords),
		zap.Int("num_records_sent", s.NumRecordsSent),
		zap.Int("num_behind", s.NumBehind),
		zap.Duration("lateness_p50", s.LatenessP50),
		zap.Duration("lateness_p99", s.LatenessP99),
		zap.Duration("lateness_max", s.LatenessMax),
		zap.Bool("completed", s.Completed),
	}
}
