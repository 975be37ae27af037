package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"time"
)

// ReferenceEpoch is the zero point of legacy numeric timestamps
// (seconds since 2001-01-01 UTC).
var ReferenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// LocationSample is a single recorded position. Samples are values and are
// never mutated once created.
type LocationSample struct {
	Latitude  float64   `json:"latitude"`  // Degrees, -90..90
	Longitude float64   `json:"longitude"` // Degrees, -180..180
	Altitude  float64   `json:"altitude"`  // Meters, may be negative
	Time      time.Time `json:"time"`      // UTC
}

// NewSample builds a sample and normalizes its timestamp to UTC.
func NewSample(lat, lon, alt float64, t time.Time) LocationSample {
	return LocationSample{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Time:      t.UTC(),
	}
}

// Valid reports whether the coordinate is within range.
func (s LocationSample) Valid() bool {
	return s.Latitude >= -90 && s.Latitude <= 90 &&
		s.Longitude >= -180 && s.Longitude <= 180
}

// Equal compares samples field by field, using time.Time.Equal for the timestamp.
func (s LocationSample) Equal(o LocationSample) bool {
	return s.Latitude == o.Latitude &&
		s.Longitude == o.Longitude &&
		s.Altitude == o.Altitude &&
		s.Time.Equal(o.Time)
}

// UnmarshalJSON accepts both RFC 3339 timestamps and legacy numeric
// reference-date seconds in the "time" field.
func (s *LocationSample) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  *float64        `json:"latitude"`
		Longitude *float64        `json:"longitude"`
		Altitude  float64         `json:"altitude"`
		Time      json.RawMessage `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return fmt.Errorf("location sample missing coordinate")
	}

	t, err := parseTime(raw.Time)
	if err != nil {
		return err
	}

	*s = NewSample(*raw.Latitude, *raw.Longitude, raw.Altitude, t)
	return nil
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("location sample missing time")
	}

	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, fmt.Errorf("invalid sample time: %w", err)
		}
		return t, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("invalid sample time: %w", err)
	}
	return ReferenceEpoch.Add(time.Duration(secs * float64(time.Second))), nil
}

// Drive is one continuous, time-ordered episode of movement.
// A valid drive is never empty.
type Drive []LocationSample

// Start returns the timestamp of the first sample.
func (d Drive) Start() time.Time {
	if len(d) == 0 {
		return time.Time{}
	}
	return d[0].Time
}

// End returns the timestamp of the last sample.
func (d Drive) End() time.Time {
	if len(d) == 0 {
		return time.Time{}
	}
	return d[len(d)-1].Time
}

// Clone returns a copy that shares no backing array with d.
func (d Drive) Clone() Drive {
	if d == nil {
		return nil
	}
	out := make(Drive, len(d))
	copy(out, d)
	return out
}

// HistoryRecord is the full persisted state: every completed drive in order
// of completion.
type HistoryRecord struct {
	Drives []Drive `json:"drives"`
}

// Empty returns a record with zero drives that still encodes as "drives": [].
func Empty() HistoryRecord {
	return HistoryRecord{Drives: []Drive{}}
}

// SampleCount returns the total number of samples across all drives.
func (r HistoryRecord) SampleCount() int {
	n := 0
	for _, d := range r.Drives {
		n += len(d)
	}
	return n
}

// Clone deep-copies the record.
func (r HistoryRecord) Clone() HistoryRecord {
	out := HistoryRecord{Drives: make([]Drive, len(r.Drives))}
	for i, d := range r.Drives {
		out.Drives[i] = d.Clone()
	}
	return out
}

// Samples iterates over every sample of every drive in order.
func (r HistoryRecord) Samples() iter.Seq[LocationSample] {
	return func(yield func(LocationSample) bool) {
		for _, d := range r.Drives {
			for _, s := range d {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Fix is a raw position report from a location sensor. Accuracy fields are
// informational only.
type Fix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   float64   `json:"vertical_accuracy,omitempty"`
	Time               time.Time `json:"time"`
}

// Sample converts the fix to a LocationSample.
func (f Fix) Sample() LocationSample {
	return NewSample(f.Latitude, f.Longitude, f.Altitude, f.Time)
}

// AuthorizationState mirrors the location permission reported by the platform.
type AuthorizationState string

const (
	AuthNotDetermined AuthorizationState = "not_determined"
	AuthDenied        AuthorizationState = "denied"
	AuthRestricted    AuthorizationState = "restricted"
	AuthWhenInUse     AuthorizationState = "when_in_use"
	AuthAlways        AuthorizationState = "always"
)

// Authorized reports whether samples may be delivered in this state.
func (a AuthorizationState) Authorized() bool {
	return a == AuthWhenInUse || a == AuthAlways
}
