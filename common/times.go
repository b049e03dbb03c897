package common

import (
	"fmt"
	"strings"
	"time"
)

// TimeFormat is the canonical wire format for timestamps: RFC 3339 in UTC
// with an explicit Z suffix and second precision.
const TimeFormat = "2006-01-02T15:04:05Z"

// FormatTime renders t in the canonical wire format. Sub-second precision is
// truncated, never rounded.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeFormat)
}

// ParseTime accepts RFC 3339 timestamps with a Z suffix or a numeric offset,
// with or without fractional seconds, and normalizes them to UTC with second
// precision.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC().Truncate(time.Second), nil
}
