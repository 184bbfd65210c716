package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("required and extra fields", func(t *testing.T) {
		r, err := Parse([]byte(`{"device_id":"dev-1","event_type":"heartbeat","timestamp":1700000000123,"battery":0.87,"tags":["a","b"]}`))
		require.NoError(t, err)

		assert.Equal(t, "dev-1", r.DeviceID())
		assert.Equal(t, "heartbeat", r.EventType())
		assert.Equal(t, int64(1700000000123), r.Timestamp())
		assert.Equal(t, 5, r.Len())
		assert.Equal(t, []string{"device_id", "event_type", "timestamp", "battery", "tags"}, r.Fields())
	})

	errorCases := []struct {
		name  string
		input string
		want  error
	}{
		{"missing device id", `{"event_type":"heartbeat","timestamp":1}`, ErrMissingField},
		{"missing event type", `{"device_id":"d","timestamp":1}`, ErrMissingField},
		{"missing timestamp", `{"device_id":"d","event_type":"heartbeat"}`, ErrMissingField},
		{"numeric device id", `{"device_id":7,"event_type":"heartbeat","timestamp":1}`, ErrInvalidField},
		{"null device id", `{"device_id":null,"event_type":"heartbeat","timestamp":1}`, ErrInvalidField},
		{"null event type", `{"device_id":"d","event_type":null,"timestamp":1}`, ErrInvalidField},
		{"string timestamp", `{"device_id":"d","event_type":"heartbeat","timestamp":"1"}`, ErrInvalidField},
		{"fractional timestamp", `{"device_id":"d","event_type":"heartbeat","timestamp":1.5}`, ErrInvalidField},
		{"array", `[1,2,3]`, ErrNotObject},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		_, err := Parse([]byte(`{"device_id":"d",`))
		assert.Error(t, err)
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := Parse([]byte(`{"device_id":"d","event_type":"e","timestamp":1} {}`))
		assert.Error(t, err)
	})
}

func TestRecordSetTimestamp(t *testing.T) {
	r, err := Parse([]byte(`{"device_id":"dev-1","timestamp":1000,"event_type":"device_enter","meta":{"zone":"b"}}`))
	require.NoError(t, err)

	r.SetTimestamp(1760000000000)

	bs, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"device_id":"dev-1","timestamp":1760000000000,"event_type":"device_enter","meta":{"zone":"b"}}`,
		string(bs),
	)
	assert.Equal(t, int64(1760000000000), r.Timestamp())
}

func TestParseError(t *testing.T) {
	err := &ParseError{Line: 3, Err: ErrNotObject}
	assert.Equal(t, "parse error on line 3: record is not a JSON object", err.Error())
	assert.ErrorIs(t, err, ErrNotObject)
}
