package model

import (
	"fmt"
	"strings"
	"time"
)

// wireLayout matches what JavaScript's Date.toISOString produces, which is
// what exported backups and API callers send.
const wireLayout = "2006-01-02T15:04:05.000Z07:00"

// ToWireTimestamp renders t as an ISO-8601 UTC string with millisecond precision.
func ToWireTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(wireLayout)
}

// FromWireTimestamp parses an ISO-8601 instant. Date-only values are read as
// local midnight in loc (UTC when loc is nil).
func FromWireTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidInput)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: malformed timestamp %q", ErrInvalidInput, raw)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable instant of the local day containing t.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
