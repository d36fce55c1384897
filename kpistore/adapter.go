package kpistore

import (
	"fmt"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/schema"
)

// Bucket formats per backend. Every format renders the same keys as core/calendar:
// 2006-01-02, 2025-W01, 2006-01 and 2006.
var (
	sqliteFormats = map[schema.Interval]string{
		schema.Day:   "%Y-%m-%d",
		schema.Week:  "%G-W%V",
		schema.Month: "%Y-%m",
		schema.Year:  "%Y",
	}
	mysqlFormats = map[schema.Interval]string{
		schema.Day:   "%Y-%m-%d",
		schema.Week:  "%x-W%v",
		schema.Month: "%Y-%m",
		schema.Year:  "%Y",
	}
	postgresFormats = map[schema.Interval]string{
		schema.Day:   "YYYY-MM-DD",
		schema.Week:  `IYYY-"W"IW`,
		schema.Month: "YYYY-MM",
		schema.Year:  "YYYY",
	}
)

// SQLiteAdapter renders bucket expressions with strftime.
type SQLiteAdapter struct{}

// MySQLAdapter renders bucket expressions with DATE_FORMAT.
type MySQLAdapter struct{}

// PostgreSQLAdapter renders bucket expressions with to_char over UTC timestamps.
type PostgreSQLAdapter struct{}

var (
	_ contract.BucketAdapter = SQLiteAdapter{}     // Compile-time check
	_ contract.BucketAdapter = MySQLAdapter{}      // Compile-time check
	_ contract.BucketAdapter = PostgreSQLAdapter{} // Compile-time check
)

// BucketExpression implements the BucketAdapter interface.
func (SQLiteAdapter) BucketExpression(column string, interval schema.Interval) (string, error) {
	format, err := formatFor(sqliteFormats, interval)
	if err != nil {
		return "", err
	}
	return "strftime('" + format + "', " + column + ")", nil
}

// BucketExpression implements the BucketAdapter interface.
func (MySQLAdapter) BucketExpression(column string, interval schema.Interval) (string, error) {
	format, err := formatFor(mysqlFormats, interval)
	if err != nil {
		return "", err
	}
	return "DATE_FORMAT(" + column + ", '" + format + "')", nil
}

// BucketExpression implements the BucketAdapter interface.
func (PostgreSQLAdapter) BucketExpression(column string, interval schema.Interval) (string, error) {
	format, err := formatFor(postgresFormats, interval)
	if err != nil {
		return "", err
	}
	return "to_char(" + column + " AT TIME ZONE 'UTC', '" + format + "')", nil
}

func formatFor(formats map[schema.Interval]string, interval schema.Interval) (string, error) {
	format, ok := formats[interval]
	if !ok {
		return "", fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, interval)
	}
	return format, nil
}

// AdapterFor returns the bucket adapter of a SQL backend.
// The memory backend buckets in Go and has no adapter.
func AdapterFor(backend schema.DatabaseBackend) (contract.BucketAdapter, error) {
	switch backend {
	case schema.SQLiteBackend:
		return SQLiteAdapter{}, nil
	case schema.MySQLBackend:
		return MySQLAdapter{}, nil
	case schema.PostgreSQLBackend:
		return PostgreSQLAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedBackend, backend)
	}
}
