package replay

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/eventreplay/internal/record"
)

func TestLoad(t *testing.T) {
	t.Run("testdata file", func(t *testing.T) {
		f, err := os.Open("testdata/events.json")
		require.NoError(t, err)
		defer f.Close()

		s, err := Load(f, "testdata/events.json", LoadOptions{Location: time.UTC})
		require.NoError(t, err)

		require.Equal(t, 4, s.Len())
		assert.Equal(t, "testdata/events.json", s.Source)

		var devices []string
		for _, e := range s.Entries {
			devices = append(devices, e.Record.DeviceID()+"/"+e.Record.EventType())
		}
		assert.Equal(t, []string{
			"sensor-7/device_enter",
			"sensor-3/heartbeat",
			"sensor-7/status_update",
			"sensor-3/device_exit",
		}, devices)

		// the baseline is the second line, not the first
		assert.Equal(t, s.Entries[1].OriginalInstant, s.Baseline)
		assert.Equal(t, 3*time.Second, s.Offset(0))
		assert.Equal(t, time.Duration(0), s.Offset(1))
		assert.Equal(t, 1500*time.Millisecond, s.Offset(2))
		assert.Equal(t, 10*time.Second, s.Offset(3))
	})

	t.Run("strict mode stops on first bad line", func(t *testing.T) {
		input := eventsInput(1000) + "\n" + `{"device_id":"x"` + "\n" + `not json` + "\n"

		_, err := Load(strings.NewReader(input), "bad", LoadOptions{})
		var perr *record.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 3, perr.Line)
	})

	t.Run("lenient mode skips bad lines", func(t *testing.T) {
		input := eventsInput(1000) + `{"device_id":"x"}` + "\n" + `not json` + "\n" + eventsInput(2000)

		s, err := Load(strings.NewReader(input), "bad", LoadOptions{Lenient: true})
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, 2, s.Skipped)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Load(strings.NewReader("\n  \n\n"), "empty.json", LoadOptions{})
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("lenient mode with nothing valid", func(t *testing.T) {
		_, err := Load(strings.NewReader("nope\n"), "bad", LoadOptions{Lenient: true})
		assert.ErrorIs(t, err, ErrNoEvents)
	})
}

func TestOriginalInstant(t *testing.T) {
	t.Run("utc", func(t *testing.T) {
		got := OriginalInstant(1000, time.UTC)
		assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 1, 0, time.UTC), got)
	})

	t.Run("wall clock reading in the location", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		got := OriginalInstant(1000, loc)
		assert.Equal(t, time.Date(1970, 1, 1, 2, 0, 1, 0, time.UTC), got)
	})

	t.Run("offsets follow the wall clock across a dst change", func(t *testing.T) {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			t.Skip("tzdata not available")
		}
		// 2024-03-31 01:59:00 CET and 03:01:00 CEST are two real minutes apart
		before := time.Date(2024, 3, 31, 1, 59, 0, 0, loc).UnixMilli()
		after := time.Date(2024, 3, 31, 3, 1, 0, 0, loc).UnixMilli()
		assert.Equal(t, int64(2*60*1000), after-before)

		gap := OriginalInstant(after, loc).Sub(OriginalInstant(before, loc))
		assert.Equal(t, 62*time.Minute, gap)
	})
}
