// Package timex holds small time helpers shared by the config loaders and
// the record stores.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Duration wraps time.Duration so it can be read from JSON either as a
// string understood by time.ParseDuration ("90s", "1m") or as an integer
// number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Precision is the resolution every persisted timestamp is truncated to.
// PostgreSQL timestamptz stores microseconds, so all backends follow it.
const Precision = time.Microsecond

// Normalize converts t to UTC at storage precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// NextAfter returns now normalized, bumped to one tick past prev when the
// clock has not advanced beyond it.
func NextAfter(now, prev time.Time) time.Time {
	now = Normalize(now)
	floor := Normalize(prev).Add(Precision)
	if now.Before(floor) {
		return floor
	}
	return now
}
