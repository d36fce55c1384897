// Package series implements the in-memory transforms over an ordered collection of KPI records:
// interval guessing, gap detection, gap filling, relative conversion and pairwise combination.
package series

import (
	"cmp"
	"slices"
	"time"

	"github.com/huangsam/kpi/core/calendar"
	"github.com/huangsam/kpi/schema"
)

// Series is an ordered collection of KPI records. It has no storage identity; every
// transform returns a new Series sorted ascending by CreatedAt and leaves its input alone.
type Series []schema.Record

// New builds a Series from records in any order.
func New(records ...schema.Record) Series {
	return Series(records).Sorted()
}

// Sorted returns a copy ordered by CreatedAt, then by ID for records sharing a timestamp.
func (s Series) Sorted() Series {
	out := slices.Clone(s)
	slices.SortStableFunc(out, compareRecords)
	return out
}

func compareRecords(a, b schema.Record) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Len returns the number of records.
func (s Series) Len() int {
	return len(s)
}

// First returns the earliest record.
func (s Series) First() (schema.Record, bool) {
	if len(s) == 0 {
		return schema.Record{}, false
	}
	return slices.MinFunc(s, compareRecords), true
}

// Last returns the latest record.
func (s Series) Last() (schema.Record, bool) {
	if len(s) == 0 {
		return schema.Record{}, false
	}
	return slices.MaxFunc(s, compareRecords), true
}

// StartDate returns the CreatedAt of the earliest record, or nil for an empty series.
func (s Series) StartDate() *time.Time {
	first, ok := s.First()
	if !ok {
		return nil
	}
	return &first.CreatedAt
}

// EndDate returns the CreatedAt of the latest record, or nil for an empty series.
func (s Series) EndDate() *time.Time {
	last, ok := s.Last()
	if !ok {
		return nil
	}
	return &last.CreatedAt
}

// Numbers returns the numeric slot of every record in order; nil slots stay nil.
func (s Series) Numbers() []*float64 {
	sorted := s.Sorted()
	out := make([]*float64, len(sorted))
	for i, r := range sorted {
		out[i] = r.Number
	}
	return out
}

// GuessInterval infers the cadence of the series from its first two records.
// It reports false when the series is shorter than two records or the gap
// between them matches no interval.
func (s Series) GuessInterval() (schema.Interval, bool) {
	if len(s) < 2 {
		return "", false
	}
	sorted := s.Sorted()
	return calendar.Infer(sorted[0].CreatedAt, sorted[1].CreatedAt)
}

// CombineWith pairs records by position: combiner receives the i-th record of s and the
// i-th record of other, or nil when other is shorter. Dates are not aligned; combine
// series that are already gap-filled over the same range.
func (s Series) CombineWith(other Series, combiner func(schema.Record, *schema.Record) schema.Record) Series {
	left := s.Sorted()
	right := other.Sorted()

	out := make(Series, len(left))
	for i, r := range left {
		var counterpart *schema.Record
		if i < len(right) {
			counterpart = &right[i]
		}
		out[i] = combiner(r, counterpart)
	}
	return out
}

// Between builds a series with one copy of template at each date from start to end
// stepping by interval. It is meant for fixtures and demos; records have no ID.
func Between(start, end time.Time, interval schema.Interval, template schema.Record) (Series, error) {
	dates, err := calendar.Period(start, end, interval)
	if err != nil {
		return nil, err
	}

	out := make(Series, len(dates))
	for i, d := range dates {
		r := template.Clone()
		r.CreatedAt = d
		r.UpdatedAt = d
		out[i] = r
	}
	return out, nil
}
