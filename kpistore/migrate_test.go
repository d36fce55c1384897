package kpistore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/kpi/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_MemoryBackend(t *testing.T) {
	err := Migrate(schema.MemoryBackend, "", -1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "migrations are not supported for memory")
}

func TestMigrate_UnknownBackend(t *testing.T) {
	err := Migrate("oracle", "", -1)
	assert.ErrorIs(t, err, schema.ErrUnsupportedBackend)
}

func TestMigrate_SQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_migration.db")

	// Run migration to latest version (should go to version 1)
	err := Migrate(schema.SQLiteBackend, dbPath, -1)
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	// Run migration again (should be a no-op)
	err = Migrate(schema.SQLiteBackend, dbPath, -1)
	assert.NoError(t, err)

	// Rollback to version 0, then back up to version 1
	err = Migrate(schema.SQLiteBackend, dbPath, 0)
	assert.NoError(t, err)
	err = Migrate(schema.SQLiteBackend, dbPath, 1)
	assert.NoError(t, err)

	// The migrated table is the one the store writes to
	store, err := NewSQLStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	insertNumber(t, store, "users:count", 1, jan(1))

	count, err := store.Count(context.Background(), schema.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMigrate_SQLiteInMemory(t *testing.T) {
	err := Migrate(schema.SQLiteBackend, ":memory:", -1)
	require.NoError(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, dir := range []string{"sqlite", "mysql", "postgres"} {
		for _, direction := range []string{"up", "down"} {
			name := "migrations/" + dir + "/000001_create_kpis." + direction + ".sql"
			data, err := migrationsFS.ReadFile(name)
			require.NoError(t, err, name)
			assert.Contains(t, string(data), "kpis", name)
		}
	}
}
