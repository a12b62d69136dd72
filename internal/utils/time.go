package utils

import (
	"time"
)

const (
	layoutDateMinute = "2006-01-02 15:04"
	layoutStamp      = "2006-01-02_150405"
)

// FormatDateMinute formats time to "YYYY-MM-DD HH:MM" in UTC.
func FormatDateMinute(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(layoutDateMinute)
}

// FileStamp is the timestamp used in export filenames.
func FileStamp(t time.Time) string {
	return t.UTC().Format(layoutStamp)
}
