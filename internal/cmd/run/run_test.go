package run

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/eventreplay/internal/record"
	"github.com/turbolytics/eventreplay/internal/replay"
)

func writeEvents(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--target", "stdout://", "--sync-interval", "0s", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	t.Run("replays to stdout", func(t *testing.T) {
		path := writeEvents(t, strings.Join([]string{
			`{"device_id":"dev-2","event_type":"heartbeat","timestamp":1718900000040,"seq":1}`,
			``,
			`{"device_id":"dev-1","event_type":"device_enter","timestamp":1718900000000,"seq":2}`,
			`{"device_id":"dev-2","event_type":"device_exit","timestamp":1718900000080,"seq":3}`,
		}, "\n"))

		before := time.Now().UnixMilli()
		out, err := execute(t, "--source", path)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)

		var devices []string
		var last int64
		for _, line := range lines {
			rec, err := record.Parse([]byte(line))
			require.NoError(t, err)
			devices = append(devices, rec.DeviceID()+"/"+rec.EventType())

			assert.GreaterOrEqual(t, rec.Timestamp(), before)
			assert.GreaterOrEqual(t, rec.Timestamp(), last)
			last = rec.Timestamp()
		}
		assert.Equal(t, []string{"dev-2/heartbeat", "dev-1/device_enter", "dev-2/device_exit"}, devices)
		assert.Contains(t, lines[0], `"seq":1`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "--source", filepath.Join(t.TempDir(), "nope.json"))
		var configErr *replay.ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("empty file never reaches the target", func(t *testing.T) {
		out, err := execute(t, "--source", writeEvents(t, "\n\n"))
		var configErr *replay.ConfigurationError
		require.ErrorAs(t, err, &configErr)
		assert.ErrorIs(t, err, replay.ErrNoEvents)
		assert.Empty(t, out)
	})

	t.Run("malformed line", func(t *testing.T) {
		path := writeEvents(t, `{"device_id":"dev-1","event_type":"heartbeat","timestamp":1}`+"\n"+`{oops`+"\n")
		_, err := execute(t, "--source", path)
		var parseErr *record.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, 2, parseErr.Line)
	})

	t.Run("lenient skips malformed line", func(t *testing.T) {
		path := writeEvents(t, `{"device_id":"dev-1","event_type":"heartbeat","timestamp":1}`+"\n"+`{oops`+"\n")
		out, err := execute(t, "--source", path, "--lenient")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, "\n"))
	})

	t.Run("unsupported target", func(t *testing.T) {
		path := writeEvents(t, `{"device_id":"dev-1","event_type":"heartbeat","timestamp":1}`+"\n")
		_, err := execute(t, "--source", path, "--target", "amqp://localhost/events")
		var configErr *replay.ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})
}
