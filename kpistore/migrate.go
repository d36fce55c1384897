package kpistore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/schema"
)

//go:embed migrations
var migrationsFS embed.FS

// migrationsTable tracks applied versions separately from application tables.
const migrationsTable = "kpi_schema_migrations"

// Migrate runs the embedded schema migrations for backend.
//   - If targetVersion < 0, it migrates to the latest version.
//   - If targetVersion == 0, it rolls back all migrations.
//   - If targetVersion > 0, it migrates to the specified version.
func Migrate(backend schema.DatabaseBackend, connStr string, targetVersion int, opts ...Option) error {
	o := newOptions(opts)

	var driverName, dir string
	switch backend {
	case schema.SQLiteBackend:
		driverName, dir = "sqlite", "sqlite"
		if connStr == "" {
			connStr = contract.GetDBFilePath()
		}
	case schema.MySQLBackend:
		driverName, dir = "mysql", "mysql"
	case schema.PostgreSQLBackend:
		driverName, dir = "pgx", "postgres"
	case schema.MemoryBackend:
		return fmt.Errorf("migrations are not supported for %s backend", backend)
	default:
		return fmt.Errorf("%w: %s", schema.ErrUnsupportedBackend, backend)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Create a migrate driver instance
	var driver database.Driver
	switch backend {
	case schema.SQLiteBackend:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: migrationsTable})
	case schema.MySQLBackend:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: migrationsTable})
	case schema.PostgreSQLBackend:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{MigrationsTable: migrationsTable})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migrate driver: %w", backend, err)
	}

	migrationFS, err := fs.Sub(migrationsFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("failed to access migrations directory: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "kpi", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d. Please fix manually or force version", currentVersion)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}

	if errors.Is(err, migrate.ErrNoChange) {
		o.logger.Info("no migration needed", "backend", backend, "version", currentVersion)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate to version %d: %w", targetVersion, err)
	}

	newVersion, _, _ := m.Version()
	o.logger.Info("migrated kpi schema", "backend", backend, "from", currentVersion, "to", newVersion)
	return nil
}
