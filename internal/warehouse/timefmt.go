package warehouse

import (
	"fmt"
	"time"
)

const (
	// TimestampLayout is the text form of every timestamp column.
	TimestampLayout = "2006-01-02 15:04:05"
	// DateLayout is the text form of calendar date columns.
	DateLayout = "2006-01-02"
	// Resolution is the smallest step TimestampLayout can express.
	Resolution = time.Second
)

// SentinelMax marks an open-ended effective_to.
var SentinelMax = time.Date(2999, time.December, 31, 23, 59, 59, 0, time.UTC)

// SentinelMaxText is SentinelMax in TimestampLayout form, used inside SQL.
const SentinelMaxText = "2999-12-31 23:59:59"

// FormatTimestamp renders t in warehouse form. Warehouse timestamps are
// wall-clock values without zone; t is normalised to UTC first.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(Resolution).Format(TimestampLayout)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseTimestamp parses a timestamp column value. Date-only values are
// accepted and read as midnight.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

// CloseBefore returns the effective_to assigned to a version superseded at now.
func CloseBefore(now time.Time) time.Time {
	return now.UTC().Truncate(Resolution).Add(-Resolution)
}
