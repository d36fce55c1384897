package schema

import (
	"fmt"
	"strings"
)

// Custom string types for type safety.
type (
	// Interval represents the calendar bucket used to align KPI records.
	Interval string

	// DatabaseBackend represents the database backend for KPI storage.
	DatabaseBackend string

	// ValueKind represents which value slot of a record is populated.
	ValueKind string

	// OutputMode represents the format of rendered series.
	OutputMode string
)

// All intervals supported.
const (
	Day   Interval = "day" // default
	Week  Interval = "week"
	Month Interval = "month"
	Year  Interval = "year"
)

// All storage backends supported.
const (
	MemoryBackend     DatabaseBackend = "memory"
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
)

// All value kinds supported.
const (
	EmptyKind  ValueKind = "empty"
	NumberKind ValueKind = "number"
	StringKind ValueKind = "string"
	JSONKind   ValueKind = "json"
	MoneyKind  ValueKind = "money"
)

// All output modes supported.
const (
	TextOut OutputMode = "text" // default
	JSONOut OutputMode = "json"
	CSVOut  OutputMode = "csv"
)

// DefaultMetric is the metric every tracked entity snapshots.
const DefaultMetric = "count"

// KeySeparator joins a namespace and a metric name into a KPI key.
const KeySeparator = ":"

// AllIntervals returns a list of all supported intervals, finest first.
var AllIntervals = []Interval{Day, Week, Month, Year}

// ValidIntervals lists all valid intervals.
var ValidIntervals = map[Interval]struct{}{
	Day:   {},
	Week:  {},
	Month: {},
	Year:  {},
}

// ValidDatabaseBackends lists all valid storage backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	MemoryBackend:     {},
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut: {},
	JSONOut: {},
	CSVOut:  {},
}

// Valid reports whether the interval is one of the supported intervals.
func (i Interval) Valid() bool {
	_, ok := ValidIntervals[i]
	return ok
}

// ParseInterval converts user input such as "Month" or " week " into an Interval.
func ParseInterval(s string) (Interval, error) {
	interval := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !interval.Valid() {
		return "", fmt.Errorf("%w: %q. must be day, week, month, year", ErrUnsupportedInterval, s)
	}
	return interval, nil
}

// ParseDatabaseBackend converts user input into a DatabaseBackend.
func ParseDatabaseBackend(s string) (DatabaseBackend, error) {
	backend := DatabaseBackend(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := ValidDatabaseBackends[backend]; !ok {
		return "", fmt.Errorf("%w: %q. must be memory, sqlite, mysql, postgresql", ErrUnsupportedBackend, s)
	}
	return backend, nil
}

// ParseOutputMode converts user input into an OutputMode.
func ParseOutputMode(s string) (OutputMode, error) {
	mode := OutputMode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := ValidOutputModes[mode]; !ok {
		return "", fmt.Errorf("invalid output mode %q. must be text, json, csv", s)
	}
	return mode, nil
}
