// Package core reads and writes KPI snapshots.
//
// A Scheduler persists the metrics of one tracked entity as records, either for a
// single as-of date with Snapshot or across a date range with Backfill. A Query reads
// those records back as a series, optionally keeping one record per calendar bucket,
// filling missing buckets and converting values into deltas.
package core
