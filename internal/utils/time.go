package utils

import (
	"fmt"
	"time"
)

// UnixTimeToTime converts a Unix timestamp to a time.Time object
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0)
}

// ParseTimeParam accepts RFC3339, a plain date or a Unix timestamp in seconds.
// An empty value returns fallback.
func ParseTimeParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	var unix int64
	if _, err := fmt.Sscanf(value, "%d", &unix); err == nil && fmt.Sprintf("%d", unix) == value {
		return UnixTimeToTime(unix), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}
