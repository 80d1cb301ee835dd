package service

import (
	"fmt"
	"time"
)

// TimeRange names a leaderboard window.
type TimeRange string

// Supported windows.
const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

// ParseTimeRange validates a window name. An empty string means month.
func ParseTimeRange(s string) (TimeRange, error) {
	switch tr := TimeRange(s); tr {
	case "":
		return RangeMonth, nil
	case RangeDay, RangeWeek, RangeMonth, RangeYear:
		return tr, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
}

// WindowFor returns the half-open interval [start, end) of the calendar
// period containing now, evaluated in loc. Weeks start on Monday.
func WindowFor(tr TimeRange, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	y, m, d := now.Date()

	switch tr {
	case RangeDay:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1), nil
	case RangeWeek:
		offset := (int(now.Weekday()) + 6) % 7
		start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 7), nil
	case RangeMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), nil
	case RangeYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, string(tr))
	}
}
