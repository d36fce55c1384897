package kpistore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/huangsam/kpi/internal/parquet"
	"github.com/huangsam/kpi/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExportParquet(t *testing.T) {
	store := NewMemoryStore()
	seedDedup(t, store)

	outputPath := filepath.Join(t.TempDir(), "kpis.parquet")
	n, err := ExportParquet(context.Background(), store, schema.RecordFilter{Key: "users:count", Interval: schema.Week}, outputPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := parquet.ReadKpiRowsParquet(outputPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "users:count", rows[0].Key)
	require.NotNil(t, rows[0].NumberValue)
	assert.Equal(t, 4.0, *rows[0].NumberValue)
	assert.Equal(t, int64(4), rows[0].ID)
}

func TestExportParquet_StoreFailure(t *testing.T) {
	store := new(MockRecordStore)
	store.On("Find", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := ExportParquet(context.Background(), store, schema.RecordFilter{}, filepath.Join(t.TempDir(), "kpis.parquet"))
	assert.ErrorContains(t, err, "connection reset")
	store.AssertExpectations(t)
}

func TestWriteSeriesParquet_Synthetic(t *testing.T) {
	records := []schema.Record{
		{Key: "users:count", Value: schema.NumberValue(1), CreatedAt: jan(1), Synthetic: true},
	}
	outputPath := filepath.Join(t.TempDir(), "series.parquet")
	require.NoError(t, WriteSeriesParquet(records, outputPath))

	rows, err := parquet.ReadKpiRowsParquet(outputPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Synthetic)
	assert.Zero(t, rows[0].ID)
}

func TestPrintStatus(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	status := schema.StoreStatus{
		Backend:        "sqlite",
		Connected:      true,
		TotalRecords:   3,
		DistinctKeys:   2,
		OldestRecord:   jan(1),
		NewestRecord:   time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC),
		RecordsPerKey:  map[string]int64{"users:count": 2, "orders:count": 1},
		TableSizeBytes: 8192,
	}

	var buf bytes.Buffer
	require.NoError(t, PrintStatus(&buf, status))
	out := buf.String()
	assert.Contains(t, out, "KPI Backend: sqlite")
	assert.Contains(t, out, "Connected: yes")
	assert.Contains(t, out, "Total Records: 3")
	assert.Contains(t, out, "Oldest Record: 2024-01-01 00:00:00")
	assert.Contains(t, out, "Newest Record: 2024-01-08 09:30:00")
	assert.Contains(t, out, "Table Size: 8192 bytes")
	assert.Contains(t, out, "orders:count")
	assert.Contains(t, out, "users:count")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("orders:count")), bytes.Index(buf.Bytes(), []byte("users:count")))
}

func TestPrintStatus_Disconnected(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var buf bytes.Buffer
	require.NoError(t, PrintStatus(&buf, schema.StoreStatus{Backend: "mysql"}))
	assert.Equal(t, "KPI Backend: mysql\nConnected: no\n", buf.String())
}
