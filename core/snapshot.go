package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/core/calendar"
	"github.com/huangsam/kpi/schema"
)

// Scheduler snapshots the KPIs of one tracked entity into a record store.
type Scheduler struct {
	store  contract.RecordStore
	entity contract.Tracked
	logger   *slog.Logger
	now      func() time.Time
	interval schema.Interval
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger for persisted snapshots and backfill failures.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now as the source of default as-of dates and audit times.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultInterval sets the backfill step used when BackfillOptions.Interval is empty,
// typically Config.DefaultInterval.
func WithDefaultInterval(interval schema.Interval) SchedulerOption {
	return func(s *Scheduler) {
		if interval != "" {
			s.interval = interval
		}
	}
}

// NewScheduler returns a scheduler writing the KPIs of entity to store.
func NewScheduler(store contract.RecordStore, entity contract.Tracked, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		entity:   entity,
		logger:   slog.Default(),
		now:      time.Now,
		interval: schema.Day,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SnapshotOptions selects which metrics a snapshot persists.
type SnapshotOptions struct {
	Only   []string // When non-empty, only these metric names
	Except []string // Metric names to skip
}

func (o SnapshotOptions) selects(name string) bool {
	if len(o.Only) > 0 && !slices.Contains(o.Only, name) {
		return false
	}
	return !slices.Contains(o.Except, name)
}

// Snapshot persists one record per selected metric of the entity as of asOf, or as of now
// when asOf is nil. The count metric comes first, then registered metrics by name.
// Deferred metrics run only when selected. On a storage failure the records persisted
// so far are returned with the error.
func (s *Scheduler) Snapshot(ctx context.Context, asOf *time.Time, opts SnapshotOptions) ([]schema.Record, error) {
	metrics, err := s.metrics(ctx, asOf)
	if err != nil {
		return nil, err
	}

	namespace := s.entity.KpiNamespace()
	now := s.now()

	var persisted []schema.Record
	for _, name := range metricOrder(metrics) {
		if !opts.selects(name) {
			continue
		}

		r, err := metrics[name].Resolve(ctx)
		if err != nil {
			return persisted, fmt.Errorf("failed to resolve kpi %s: %w", contract.KeyFor(namespace, name), err)
		}
		if r.Key == "" {
			r.Key = contract.KeyFor(namespace, name)
		}
		if r.CreatedAt.IsZero() {
			if asOf != nil {
				r.CreatedAt = *asOf
			} else {
				r.CreatedAt = now
			}
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}

		if err := s.store.Insert(ctx, &r); err != nil {
			return persisted, fmt.Errorf("failed to persist kpi %s: %w", r.Key, err)
		}
		s.logger.Debug("kpi snapshot persisted", "key", r.Key, "id", r.ID, "as_of", r.CreatedAt)
		persisted = append(persisted, r)
	}
	return persisted, nil
}

// metrics returns the default count metric merged with the metrics the entity registers.
// A registered metric named count replaces the default one.
func (s *Scheduler) metrics(ctx context.Context, asOf *time.Time) (map[string]contract.Metric, error) {
	metrics := map[string]contract.Metric{
		schema.DefaultMetric: contract.Deferred(func(ctx context.Context) (schema.Record, error) {
			n, err := s.entity.CountRows(ctx, asOf)
			if err != nil {
				return schema.Record{}, fmt.Errorf("failed to count %s: %w", s.entity.KpiNamespace(), err)
			}
			return schema.Record{Value: schema.NumberValue(float64(n))}, nil
		}),
	}

	registrar, ok := s.entity.(contract.MetricRegistrar)
	if !ok {
		return metrics, nil
	}
	registered, err := registrar.RegisterKpis(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to register kpis of %s: %w", s.entity.KpiNamespace(), err)
	}
	maps.Copy(metrics, registered)
	return metrics, nil
}

// metricOrder lists count first and every other metric name in sorted order.
func metricOrder(metrics map[string]contract.Metric) []string {
	names := slices.Sorted(maps.Keys(metrics))
	if i := slices.Index(names, schema.DefaultMetric); i > 0 {
		names = slices.Delete(names, i, i+1)
		names = slices.Insert(names, 0, schema.DefaultMetric)
	}
	return names
}

// BackfillOptions configures Backfill.
type BackfillOptions struct {
	Interval schema.Interval // Step between snapshots; defaults to the scheduler's interval
	Except   []time.Time     // Dates whose bucket is skipped
	Snapshot SnapshotOptions // Metric selection applied at every step
}

// BackfillError reports the date at which a backfill stopped.
// Snapshots of earlier dates stay persisted.
type BackfillError struct {
	Date time.Time
	Err  error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("backfill stopped at %s: %v", e.Date.Format(time.DateOnly), e.Err)
}

func (e *BackfillError) Unwrap() error {
	return e.Err
}

// Backfill snapshots every date from start to end inclusive, stepping by opts.Interval,
// and returns the persisted records in chronological order. Dates in the same bucket as
// one of opts.Except are skipped. The first failure stops the walk with a *BackfillError
// alongside the records persisted before it.
func (s *Scheduler) Backfill(ctx context.Context, start, end time.Time, opts BackfillOptions) ([]schema.Record, error) {
	interval := opts.Interval
	if interval == "" {
		interval = s.interval
	}

	dates, err := calendar.Period(start, end, interval)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(opts.Except))
	for _, d := range opts.Except {
		skip[calendar.MustBucketKey(d, interval)] = struct{}{}
	}

	var all []schema.Record
	for _, d := range dates {
		if _, ok := skip[calendar.MustBucketKey(d, interval)]; ok {
			continue
		}

		err := ctx.Err()
		if err == nil {
			var records []schema.Record
			records, err = s.Snapshot(ctx, &d, opts.Snapshot)
			all = append(all, records...)
		}
		if err != nil {
			s.logger.Warn("kpi backfill failed", "namespace", s.entity.KpiNamespace(), "date", d, "error", err)
			return all, &BackfillError{Date: d, Err: err}
		}
	}
	return all, nil
}

// Query returns a query over the records of one metric of the entity.
// An empty metric selects the default count metric.
func (s *Scheduler) Query(metric string) Query {
	if metric == "" {
		metric = schema.DefaultMetric
	}
	return NewQuery(s.store).Key(contract.KeyFor(s.entity.KpiNamespace(), metric))
}
