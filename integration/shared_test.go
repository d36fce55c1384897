//go:build database

// Package integration contains integration tests for the KPI stores.
// These tests are excluded from normal test runs due to build tags.
// To run these tests: go test -tags database ./integration
package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/core"
	"github.com/huangsam/kpi/kpistore"
	"github.com/huangsam/kpi/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// users is a tracked entity with one row per day starting Dec 28 2024.
type users struct{}

func (users) KpiNamespace() string { return "users" }

func (users) CountRows(_ context.Context, asOf *time.Time) (int64, error) {
	if asOf == nil {
		return 10, nil
	}
	days := int64(asOf.Sub(usersOrigin).Hours()/24) + 1
	return min(max(days, 0), 10), nil
}

func (users) RegisterKpis(_ context.Context, _ *time.Time) (map[string]contract.Metric, error) {
	return map[string]contract.Metric{
		"revenue": contract.Eager(schema.Record{Value: schema.MoneyValue(decimal.RequireFromString("19.99"), "usd")}),
	}, nil
}

var usersOrigin = time.Date(2024, time.December, 28, 0, 0, 0, 0, time.UTC)

// loadConfig resolves the store configuration from KPI_* environment variables.
func loadConfig(t *testing.T, backend schema.DatabaseBackend, connStr string) *contract.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KPI_BACKEND", string(backend))
	t.Setenv("KPI_DB_CONNECT", connStr)
	t.Setenv("KPI_INTERVAL", "day")

	cfg, err := contract.LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, backend, cfg.Backend)
	require.Equal(t, schema.Day, cfg.DefaultInterval)
	return cfg
}

// exerciseStore runs the same scenario against any SQL backend.
func exerciseStore(t *testing.T, cfg *contract.Config) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, kpistore.Migrate(cfg.Backend, cfg.DBConnect, -1))
	require.NoError(t, kpistore.Migrate(cfg.Backend, cfg.DBConnect, -1), "second migration is a no-op")

	logger := cfg.NewLogger(t.Output())
	store, err := kpistore.Open(cfg, kpistore.WithLogger(logger))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	s := core.NewScheduler(store, users{}, core.WithLogger(logger), core.WithDefaultInterval(cfg.DefaultInterval))
	records, err := s.Backfill(ctx, usersOrigin, usersOrigin.AddDate(0, 0, 13), core.BackfillOptions{
		Except: []time.Time{usersOrigin.AddDate(0, 0, 5)},
	})
	require.NoError(t, err)
	require.Len(t, records, 26)

	// Rewrite Jan 3 2025 so that it wins its day bucket
	late := schema.Record{Key: "users:count", Value: schema.NumberValue(100), CreatedAt: usersOrigin.AddDate(0, 0, 6).Add(time.Hour)}
	require.NoError(t, store.Insert(ctx, &late))

	daily, err := s.Query("").PerDay().Get(ctx)
	require.NoError(t, err)
	require.Len(t, daily, 13)
	assert.Equal(t, 100.0, *daily[5].Number)
	assert.Equal(t, late.ID, daily[5].ID)

	// Dec 28 and 29 are 2024-W52; Dec 30 through Jan 5 are 2025-W01; Jan 6 onwards 2025-W02
	weekly, err := s.Query("").PerWeek().Get(ctx)
	require.NoError(t, err)
	require.Len(t, weekly, 3)
	assert.Equal(t, 2.0, *weekly[0].Number)
	assert.Equal(t, 100.0, *weekly[1].Number, "the late insert wins its week")
	assert.Equal(t, 10.0, *weekly[2].Number)

	monthly, err := s.Query("").PerMonth().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), monthly)

	filled, err := s.Query("").PerDay().FillGaps().Get(ctx)
	require.NoError(t, err)
	require.Len(t, filled, 14)
	assert.True(t, filled[5].Synthetic)
	assert.Equal(t, *filled[4].Number, *filled[5].Number)

	relative, err := s.Query("").PerDay().Relative().
		Between(ptr(usersOrigin.AddDate(0, 0, 1)), ptr(usersOrigin.AddDate(0, 0, 3))).Get(ctx)
	require.NoError(t, err)
	require.Len(t, relative, 3)
	for _, r := range relative {
		assert.Equal(t, 1.0, *r.Number)
	}

	revenue, err := s.Query("revenue").PerYear().Get(ctx)
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	assert.True(t, decimal.RequireFromString("19.99").Equal(*revenue[1].Money))
	assert.Equal(t, "USD", *revenue[1].Currency)

	require.NoError(t, store.Delete(ctx, late.ID))
	assert.ErrorIs(t, store.Delete(ctx, late.ID), schema.ErrNotFound)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, int64(26), status.TotalRecords)
	assert.Equal(t, int64(2), status.DistinctKeys)
	assert.True(t, status.OldestRecord.Equal(usersOrigin))

	var out bytes.Buffer
	require.NoError(t, kpistore.PrintStatus(&out, status))
	assert.Contains(t, out.String(), "users:revenue")

	n, err := kpistore.ExportParquet(ctx, store, schema.RecordFilter{Key: "users:count"}, filepath.Join(t.TempDir(), "kpis.parquet"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	require.NoError(t, kpistore.Migrate(cfg.Backend, cfg.DBConnect, 0))
}

func ptr[T any](v T) *T {
	return &v
}
