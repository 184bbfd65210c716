package stdout

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/turbolytics/eventreplay/internal/record"
)

// Sink writes each record as a JSON line. It is used for dry runs, so every
// line is written as soon as it is sent.
type Sink struct {
	w io.Writer
}

func New(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{
		w: w,
	}
}

func (s *Sink) Send(ctx context.Context, rec *record.Record) error {
	bs, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.w.Write(append(bs, '\n'))
	return err
}

func (s *Sink) Flush(ctx context.Context) error {
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	return nil
}
