// Package kpistore provides record stores for KPI snapshots: an in-memory store and a
// SQL store for SQLite, MySQL and PostgreSQL, plus the per-backend bucket adapters,
// schema migrations and export helpers around them.
package kpistore

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/schema"
)

// Option configures a store created by Open or NewSQLStore.
type Option func(*options)

type options struct {
	logger *slog.Logger
	table  string
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default(), table: DefaultTableName}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTableName stores records in table instead of DefaultTableName.
func WithTableName(table string) Option {
	return func(o *options) {
		o.table = table
	}
}

// Open returns the record store selected by cfg.
func Open(cfg *contract.Config, opts ...Option) (contract.RecordStore, error) {
	switch cfg.Backend {
	case schema.MemoryBackend:
		return NewMemoryStore(), nil
	case schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend:
		store, err := NewSQLStore(cfg.Backend, cfg.DBConnect, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kpi store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s. Must be memory, sqlite, mysql, or postgresql", schema.ErrUnsupportedBackend, cfg.Backend)
	}
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTableName validates that the table name is a safe SQL identifier.
func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %s (must match pattern %s)", name, tableNamePattern)
	}
	return nil
}

// quoteTableName returns the properly quoted identifier for the given backend.
func quoteTableName(name string, backend schema.DatabaseBackend) string {
	switch backend {
	case schema.MySQLBackend:
		return "`" + name + "`"
	default: // SQLite and PostgreSQL
		return `"` + name + `"`
	}
}
