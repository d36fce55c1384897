package schema

import "errors"

// Error kinds shared by the calendar, series, query and storage layers.
// Callers match them with errors.Is; messages are wrapped with call-specific detail.
var (
	// ErrAmbiguousInterval is returned when an interval is required but cannot be inferred.
	ErrAmbiguousInterval = errors.New("interval cannot be inferred from fewer than two records; supply it explicitly")

	// ErrEmptySeriesNoDefault is returned when gaps must be filled in an empty series without a default value.
	ErrEmptySeriesNoDefault = errors.New("gaps cannot be filled in an empty series without a default value")

	// ErrUnsupportedBackend is returned for an unknown storage backend identifier.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrUnsupportedInterval is returned for an interval outside day, week, month, year.
	ErrUnsupportedInterval = errors.New("unsupported interval")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)
