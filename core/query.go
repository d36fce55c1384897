package core

import (
	"context"
	"fmt"
	"time"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/core/calendar"
	"github.com/huangsam/kpi/core/series"
	"github.com/huangsam/kpi/schema"
)

// Query reads KPI records from a store and post-processes them as a series.
// Every builder method returns a modified copy, so a Query can be shared and extended freely.
type Query struct {
	store      contract.RecordStore
	key        string
	start      *time.Time
	end        *time.Time
	interval   schema.Interval
	relative   bool
	fillGaps   bool
	gapDefault *schema.Value
	latest     bool
}

// NewQuery returns a query over every record in store.
func NewQuery(store contract.RecordStore) Query {
	return Query{store: store}
}

// Key restricts the query to records with the given key.
func (q Query) Key(key string) Query {
	q.key = key
	return q
}

// Between bounds CreatedAt on both sides, inclusively. A nil bound is left open.
func (q Query) Between(start, end *time.Time) Query {
	q.start = copyTime(start)
	q.end = copyTime(end)
	return q
}

// After sets the inclusive lower bound on CreatedAt.
func (q Query) After(start time.Time) Query {
	q.start = &start
	return q
}

// Before sets the inclusive upper bound on CreatedAt.
func (q Query) Before(end time.Time) Query {
	q.end = &end
	return q
}

// PerInterval keeps only the most recently inserted record per key and bucket.
func (q Query) PerInterval(interval schema.Interval) Query {
	q.interval = interval
	return q
}

// PerDay is PerInterval(schema.Day).
func (q Query) PerDay() Query { return q.PerInterval(schema.Day) }

// PerWeek is PerInterval(schema.Week).
func (q Query) PerWeek() Query { return q.PerInterval(schema.Week) }

// PerMonth is PerInterval(schema.Month).
func (q Query) PerMonth() Query { return q.PerInterval(schema.Month) }

// PerYear is PerInterval(schema.Year).
func (q Query) PerYear() Query { return q.PerInterval(schema.Year) }

// Relative returns deltas between consecutive buckets instead of absolute values.
// It requires PerInterval; Get fails with schema.ErrAmbiguousInterval otherwise.
func (q Query) Relative() Query {
	q.relative = true
	return q
}

// FillGaps adds carry-forward placeholders for buckets without a record.
func (q Query) FillGaps() Query {
	q.fillGaps = true
	q.gapDefault = nil
	return q
}

// FillGapsWith adds placeholders holding value for buckets without a record.
func (q Query) FillGapsWith(value schema.Value) Query {
	q.fillGaps = true
	v := value.Clone()
	q.gapDefault = &v
	return q
}

// Latest orders results newest first. Gap-filled and relative results are always oldest first.
func (q Query) Latest() Query {
	q.latest = true
	return q
}

// Filter returns the store filter that Get and Count run. For relative queries the
// lower bound is pushed back one interval so that the first bucket has a predecessor.
func (q Query) Filter() (schema.RecordFilter, error) {
	filter := schema.RecordFilter{
		Key:      q.key,
		Start:    copyTime(q.start),
		End:      copyTime(q.end),
		Interval: q.interval,
	}

	if q.relative {
		if q.interval == "" {
			return filter, fmt.Errorf("relative query: %w", schema.ErrAmbiguousInterval)
		}
		if q.start != nil {
			extended, err := calendar.Predecessor(*q.start, q.interval, 1)
			if err != nil {
				return filter, err
			}
			filter.Start = &extended
		}
	}

	filter.Descending = q.latest && !q.postProcessed()
	return filter, nil
}

func (q Query) postProcessed() bool {
	return q.relative || q.fillGaps
}

// Get runs the query and applies relative conversion or gap filling.
// An empty result without a gap default is returned as an empty series.
func (q Query) Get(ctx context.Context) (series.Series, error) {
	filter, err := q.Filter()
	if err != nil {
		return nil, err
	}

	records, err := q.store.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !q.postProcessed() {
		// Keep the store order so Latest stays newest first
		return series.Series(records), nil
	}

	s := series.New(records...)
	if len(s) == 0 && q.gapDefault == nil {
		return s, nil
	}

	if q.relative {
		filled, err := s.FillGaps(series.FillOptions{
			Start:    filter.Start,
			End:      filter.End,
			Interval: q.interval,
			Default:  q.gapDefault,
			Key:      q.key,
		})
		if err != nil {
			return nil, err
		}
		relative := filled.ToRelative()
		if len(relative) == 0 {
			return relative, nil
		}
		return relative[1:], nil
	}

	return s.FillGaps(series.FillOptions{
		Start:    q.start,
		End:      q.end,
		Interval: q.interval,
		Default:  q.gapDefault,
		Key:      q.key,
	})
}

// Count returns how many records the store filter matches. Gap filling never changes the count.
func (q Query) Count(ctx context.Context) (int64, error) {
	filter, err := q.Filter()
	if err != nil {
		return 0, err
	}
	return q.store.Count(ctx, filter)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
