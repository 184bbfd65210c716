package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	FieldDeviceID  = "device_id"
	FieldEventType = "event_type"
	FieldTimestamp = "timestamp"
)

var (
	ErrNotObject    = errors.New("record is not a JSON object")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field")
)

// Record is a single device event read from the input.
// Field order is kept so the record is re-encoded the way it was read;
// values other than the timestamp are never touched.
type Record struct {
	fields []string
	values []json.RawMessage

	deviceID  string
	eventType string
	timestamp int64
}

// ParseError reports a line of input that could not be turned into a Record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes one JSON object. device_id and event_type must be strings
// and timestamp must be an integer number of milliseconds.
func Parse(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	r := &Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		r.set(key, raw)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if rest := bytes.TrimSpace(data[dec.InputOffset():]); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected data after object")
	}

	if err := r.decodeRequired(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Record) decodeRequired() error {
	var err error
	if r.deviceID, err = r.requiredString(FieldDeviceID); err != nil {
		return err
	}
	if r.eventType, err = r.requiredString(FieldEventType); err != nil {
		return err
	}

	raw, ok := r.get(FieldTimestamp)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingField, FieldTimestamp)
	}
	ts, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer number of milliseconds", ErrInvalidField, FieldTimestamp)
	}
	r.timestamp = ts
	return nil
}

// requiredString decodes a field that must hold a JSON string; null is rejected.
func (r *Record) requiredString(key string) (string, error) {
	raw, ok := r.get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidField, key)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidField, key)
	}
	return v, nil
}

func (r *Record) get(key string) (json.RawMessage, bool) {
	for i, field := range r.fields {
		if field == key {
			return r.values[i], true
		}
	}
	return nil, false
}

// duplicate keys keep their first position and the last value, like encoding/json.
func (r *Record) set(key string, value json.RawMessage) {
	for i, field := range r.fields {
		if field == key {
			r.values[i] = value
			return
		}
	}
	r.fields = append(r.fields, key)
	r.values = append(r.values, value)
}

func (r *Record) DeviceID() string {
	return r.deviceID
}

func (r *Record) EventType() string {
	return r.eventType
}

// Timestamp returns the record's timestamp in milliseconds since the epoch.
func (r *Record) Timestamp() int64 {
	return r.timestamp
}

// SetTimestamp rewrites the timestamp field, keeping its position.
func (r *Record) SetTimestamp(ms int64) {
	r.timestamp = ms
	r.set(FieldTimestamp, json.RawMessage(strconv.FormatInt(ms, 10)))
}

func (r *Record) Len() int {
	return len(r.fields)
}

func (r *Record) Fields() []string {
	return r.fields
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(r.values[i])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
