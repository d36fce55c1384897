package contract

import (
	"context"
	"errors"

	"github.com/huangsam/kpi/schema"
)

// Producer computes a metric record on demand.
type Producer func(ctx context.Context) (schema.Record, error)

// Metric is either an eager record or a deferred producer.
// The zero value is an empty metric and fails to resolve.
type Metric struct {
	record  *schema.Record
	produce Producer
}

var errEmptyMetric = errors.New("metric has neither a record nor a producer")

// Eager wraps a record that is already computed.
func Eager(r schema.Record) Metric {
	return Metric{record: &r}
}

// Number is shorthand for an eager metric holding a numeric value.
func Number(n float64) Metric {
	return Eager(schema.Record{Value: schema.NumberValue(n)})
}

// Deferred wraps a producer that runs only when the metric is resolved.
func Deferred(fn Producer) Metric {
	return Metric{produce: fn}
}

// IsDeferred reports whether resolving the metric runs a producer.
func (m Metric) IsDeferred() bool {
	return m.produce != nil
}

// Resolve returns the metric's record, running the producer for deferred metrics.
// The returned record never aliases the eager record.
func (m Metric) Resolve(ctx context.Context) (schema.Record, error) {
	switch {
	case m.produce != nil:
		return m.produce(ctx)
	case m.record != nil:
		return m.record.Clone(), nil
	default:
		return schema.Record{}, errEmptyMetric
	}
}

// KeyFor joins a namespace and a metric name into a KPI key.
func KeyFor(namespace, metric string) string {
	return namespace + schema.KeySeparator + metric
}
