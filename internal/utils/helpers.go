package utils

import (
	"strings"
	"time"
)

// SplitPath splits a resource address or topic into its non-empty segments
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StripSpaces removes every space character. Tabs and newlines are kept.
func StripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// TimeFormat is the wall-clock format of rule timestamps
const TimeFormat = "2006-01-02T15:04:05"

// FormatTime formats a wall-clock timestamp in UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
