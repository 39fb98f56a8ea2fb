package util

import (
	"strconv"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	// naive timestamps from field devices are taken as UTC
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime tries RFC3339(Nano), naive ISO-8601 in UTC, and unix seconds or
// milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// anything past year 2286 in seconds is really milliseconds
		if ts > 1e10 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}
