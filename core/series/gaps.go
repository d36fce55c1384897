package series

import (
	"fmt"
	"time"

	"github.com/huangsam/kpi/core/calendar"
	"github.com/huangsam/kpi/schema"
)

// FillOptions configures FillGaps. Zero fields fall back to values derived from the series.
type FillOptions struct {
	Start    *time.Time      // Defaults to the earliest CreatedAt
	End      *time.Time      // Defaults to the latest CreatedAt
	Interval schema.Interval // Defaults to GuessInterval
	Default  *schema.Value   // Value given to every placeholder when set
	Key      string          // Key given to placeholders; defaults to the key of the record they copy
}

// FindGaps returns the bucket dates between start and end that hold no record, in order.
// start and end default to the first and last CreatedAt. A series with fewer than two
// records has no gaps.
func (s Series) FindGaps(interval schema.Interval, start, end *time.Time) ([]time.Time, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("find gaps: %w: %q", schema.ErrUnsupportedInterval, interval)
	}
	if len(s) < 2 {
		return nil, nil
	}

	items := s.Sorted()
	from, to := items[0].CreatedAt, items[len(items)-1].CreatedAt
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}

	expected, err := calendar.Enumerate(from, to, interval)
	if err != nil {
		return nil, fmt.Errorf("find gaps: %w", err)
	}

	actual := make(map[string]struct{}, len(items))
	for _, r := range items {
		actual[calendar.MustBucketKey(r.CreatedAt, interval)] = struct{}{}
	}

	var gaps []time.Time
	for _, d := range expected {
		if _, ok := actual[calendar.MustBucketKey(d, interval)]; !ok {
			gaps = append(gaps, d)
		}
	}
	return gaps, nil
}

// FillGaps returns a series with exactly one record per bucket between start and end.
// Existing records are kept; missing buckets get a synthetic placeholder dated at the bucket.
//
// A placeholder takes its value from, in order: opts.Default, the previous record, the
// first record not yet consumed, the first record of the series. Records before start
// are not emitted but still seed the previous value. When a bucket holds several records
// only the latest is kept.
func (s Series) FillGaps(opts FillOptions) (Series, error) {
	items := s.Sorted()

	interval := opts.Interval
	if interval == "" {
		if len(items) < 2 {
			return nil, fmt.Errorf("fill gaps: %w", schema.ErrAmbiguousInterval)
		}
		guessed, ok := items.GuessInterval()
		if !ok {
			return nil, fmt.Errorf("fill gaps: %w: first two records are %s apart",
				schema.ErrAmbiguousInterval, items[1].CreatedAt.Sub(items[0].CreatedAt))
		}
		interval = guessed
	} else if !interval.Valid() {
		return nil, fmt.Errorf("fill gaps: %w: %q", schema.ErrUnsupportedInterval, interval)
	}

	if len(items) == 0 && opts.Default == nil {
		return nil, fmt.Errorf("fill gaps: %w", schema.ErrEmptySeriesNoDefault)
	}

	start, end := opts.Start, opts.End
	if start == nil {
		start = items.StartDate()
	}
	if end == nil {
		end = items.EndDate()
	}
	if start == nil || end == nil || start.After(*end) {
		return items, nil
	}

	dates, err := calendar.Enumerate(*start, *end, interval)
	if err != nil {
		return nil, fmt.Errorf("fill gaps: %w", err)
	}

	f := &filler{items: items, opts: opts}
	out := make(Series, 0, len(dates))
	for _, d := range dates {
		bucket := calendar.MustBucketKey(d, interval)

		// Records from earlier buckets are only carry-forward candidates.
		for f.cursor < len(items) && calendar.MustBucketKey(items[f.cursor].CreatedAt, interval) < bucket {
			f.prev = &items[f.cursor]
			f.cursor++
		}

		var kept *schema.Record
		for f.cursor < len(items) && calendar.MustBucketKey(items[f.cursor].CreatedAt, interval) == bucket {
			kept = &items[f.cursor]
			f.cursor++
		}

		if kept != nil {
			out = append(out, kept.Clone())
			f.prev = kept
			continue
		}
		out = append(out, f.placeholder(d))
	}
	return out, nil
}

// filler tracks the walk over existing records while buckets are emitted.
type filler struct {
	items  Series
	opts   FillOptions
	cursor int
	prev   *schema.Record
}

// source picks the record a placeholder copies when no default is given.
func (f *filler) source() *schema.Record {
	switch {
	case f.prev != nil:
		return f.prev
	case f.cursor < len(f.items):
		return &f.items[f.cursor]
	case len(f.items) > 0:
		return &f.items[0]
	default:
		return nil
	}
}

func (f *filler) placeholder(d time.Time) schema.Record {
	src := f.source()

	r := schema.Record{
		Key:       f.opts.Key,
		CreatedAt: d,
		UpdatedAt: d,
		Synthetic: true,
	}
	if r.Key == "" && src != nil {
		r.Key = src.Key
	}

	switch {
	case f.opts.Default != nil:
		r.Value = f.opts.Default.Clone()
	case src != nil:
		r.Value = src.Value.Clone()
	}
	return r
}
