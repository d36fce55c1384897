// Package calendar holds the calendar-bucket semantics for KPI intervals.
// Everything else in the module goes through it instead of doing raw date arithmetic.
//
// Buckets are UTC calendar units, matching how the SQL stores persist timestamps.
// Every function converts its inputs to UTC and returns UTC times.
package calendar

import (
	"fmt"
	"time"

	"github.com/huangsam/kpi/schema"
)

// Layouts used to build canonical bucket keys. Week keys are built from the ISO week.
const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	yearLayout  = "2006"
)

// BucketKey returns the canonical key of the bucket t falls in.
// Two times share a bucket iff their keys are equal.
func BucketKey(t time.Time, interval schema.Interval) (string, error) {
	t = t.UTC()
	switch interval {
	case schema.Day:
		return t.Format(dayLayout), nil
	case schema.Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case schema.Month:
		return t.Format(monthLayout), nil
	case schema.Year:
		return t.Format(yearLayout), nil
	default:
		return "", fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, interval)
	}
}

// MustBucketKey is BucketKey for intervals already validated by the caller.
func MustBucketKey(t time.Time, interval schema.Interval) string {
	key, err := BucketKey(t, interval)
	if err != nil {
		panic(err)
	}
	return key
}

// SameBucket reports whether a and b fall in the same bucket of interval.
func SameBucket(a, b time.Time, interval schema.Interval) bool {
	ka, err := BucketKey(a, interval)
	if err != nil {
		return false
	}
	kb, _ := BucketKey(b, interval)
	return ka == kb
}

// Add moves t by n units of interval. Month and year steps never overflow into the
// following month: Jan 31 + 1 month is the last day of February.
func Add(t time.Time, interval schema.Interval, n int) (time.Time, error) {
	t = t.UTC()
	switch interval {
	case schema.Day:
		return t.AddDate(0, 0, n), nil
	case schema.Week:
		return t.AddDate(0, 0, 7*n), nil
	case schema.Month:
		return addMonthsNoOverflow(t, n), nil
	case schema.Year:
		return addMonthsNoOverflow(t, 12*n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, interval)
	}
}

// Successor returns t moved n units forward.
func Successor(t time.Time, interval schema.Interval, n int) (time.Time, error) {
	return Add(t, interval, n)
}

// Predecessor returns t moved n units backward.
func Predecessor(t time.Time, interval schema.Interval, n int) (time.Time, error) {
	return Add(t, interval, -n)
}

// addMonthsNoOverflow clamps the day of month to the length of the target month.
func addMonthsNoOverflow(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	total := int(month) - 1 + months
	targetYear := year + floorDiv(total, 12)
	targetMonth := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysIn(targetYear, targetMonth, t.Location()); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Enumerate returns one date per bucket from start's bucket through end's bucket, inclusive.
// Every date is computed from start, so a clamped month step does not drift the day of month.
// The sequence is rebuilt on every call.
func Enumerate(start, end time.Time, interval schema.Interval) ([]time.Time, error) {
	endKey, err := BucketKey(end, interval)
	if err != nil {
		return nil, err
	}

	var dates []time.Time
	for k := 0; ; k++ {
		date, _ := Add(start, interval, k)
		if MustBucketKey(date, interval) > endKey {
			break
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// Period returns the dates start, start+1, ... that are not after end.
func Period(start, end time.Time, interval schema.Interval) ([]time.Time, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, interval)
	}

	var dates []time.Time
	for k := 0; ; k++ {
		date, _ := Add(start, interval, k)
		if date.After(end) {
			break
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// Infer returns the interval separating a and b when b falls on the same calendar day as
// a moved by exactly one unit. Intervals are tried from finest to coarsest.
func Infer(a, b time.Time) (schema.Interval, bool) {
	for _, interval := range schema.AllIntervals {
		next, _ := Add(a, interval, 1)
		if SameBucket(next, b, schema.Day) {
			return interval, true
		}
	}
	return "", false
}

// Truncate returns the first instant of the bucket t falls in.
// Weeks start on Monday, matching ISO week numbering.
func Truncate(t time.Time, interval schema.Interval) (time.Time, error) {
	t = t.UTC()
	year, month, day := t.Date()
	loc := time.UTC

	switch interval {
	case schema.Day:
		return time.Date(year, month, day, 0, 0, 0, 0, loc), nil
	case schema.Week:
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		return time.Date(year, month, day-offset, 0, 0, 0, 0, loc), nil
	case schema.Month:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc), nil
	case schema.Year:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, loc), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, interval)
	}
}
