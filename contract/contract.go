// Package contract defines the collaborators the KPI core depends on: the record store,
// the per-backend bucket adapter and the tracked entity.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/kpi/schema"
)

// RecordStore defines the storage operations the query builder and scheduler need.
// This allows the core to be tested without a real database.
type RecordStore interface {
	// Insert persists r, assigning its ID. UpdatedAt defaults to CreatedAt when unset.
	Insert(ctx context.Context, r *schema.Record) error

	// Find returns the records matching filter, ordered by CreatedAt then ID.
	Find(ctx context.Context, filter schema.RecordFilter) ([]schema.Record, error)

	// Count returns how many records Find would return for filter.
	Count(ctx context.Context, filter schema.RecordFilter) (int64, error)

	// Delete removes the record with the given ID, or returns schema.ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// Status returns status information about the store.
	Status(ctx context.Context) (schema.StoreStatus, error)

	// Close closes the underlying connection
	Close() error
}

// BucketAdapter renders the backend-native expression that truncates a timestamp column
// to the canonical bucket key of an interval.
type BucketAdapter interface {
	BucketExpression(column string, interval schema.Interval) (string, error)
}

// Tracked is implemented by any domain entity that wants KPI snapshots.
type Tracked interface {
	// KpiNamespace returns the key prefix for the entity, such as "users".
	KpiNamespace() string

	// CountRows returns the number of entity rows created on or before asOf,
	// or all rows when asOf is nil.
	CountRows(ctx context.Context, asOf *time.Time) (int64, error)
}

// MetricRegistrar is optionally implemented by a Tracked entity to publish metrics
// beyond the default row count.
type MetricRegistrar interface {
	RegisterKpis(ctx context.Context, asOf *time.Time) (map[string]Metric, error)
}
