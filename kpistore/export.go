package kpistore

import (
	"context"
	"fmt"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/internal/parquet"
	"github.com/huangsam/kpi/schema"
)

// ExportParquet writes the records matching filter to a Parquet file at outputPath
// and returns how many were written.
func ExportParquet(ctx context.Context, store contract.RecordStore, filter schema.RecordFilter, outputPath string) (int, error) {
	records, err := store.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch kpi records: %w", err)
	}
	if err := WriteSeriesParquet(records, outputPath); err != nil {
		return 0, err
	}
	return len(records), nil
}

// WriteSeriesParquet writes records, including synthetic ones, to a Parquet file.
func WriteSeriesParquet(records []schema.Record, outputPath string) error {
	rows, err := parquet.ConvertRecords(records)
	if err != nil {
		return err
	}
	if err := parquet.WriteKpiRowsParquet(rows, outputPath); err != nil {
		return fmt.Errorf("failed to export kpi records to %s: %w", outputPath, err)
	}
	return nil
}
