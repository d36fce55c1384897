// Package parquet provides data structures and functions for exporting KPI
// records to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/huangsam/kpi/schema"
	"github.com/parquet-go/parquet-go"
)

// KpiRow represents a single KPI record in a Parquet file.
// Nullable value slots map to optional columns.
type KpiRow struct {
	// ID is the storage identity of the record; zero for synthetic records
	ID int64 `parquet:"id,snappy"`

	// Key is the "<namespace>:<metric>" key of the KPI
	Key string `parquet:"kpi_key,snappy"`

	// NumberValue is the numeric observation (nullable)
	NumberValue *float64 `parquet:"number_value,optional,snappy"`

	// StringValue is the text observation (nullable)
	StringValue *string `parquet:"string_value,optional,snappy"`

	// JSONValue is the JSON-encoded structured observation (nullable)
	JSONValue *string `parquet:"json_value,optional,snappy"`

	// MoneyValue is the decimal amount rendered as a string (nullable)
	MoneyValue *string `parquet:"money_value,optional,snappy"`

	// MoneyCurrency is the ISO currency code of MoneyValue (nullable)
	MoneyCurrency *string `parquet:"money_currency,optional,snappy"`

	// Metadata is the JSON-encoded metadata map (nullable)
	Metadata *string `parquet:"metadata,optional,snappy"`

	// CreatedAt is the as-of date of the KPI (stored as TIMESTAMP with nanosecond precision)
	CreatedAt time.Time `parquet:"created_at,snappy"`

	// UpdatedAt is when the record was last written
	UpdatedAt time.Time `parquet:"updated_at,snappy"`

	// Synthetic marks gap-fill placeholders and relative records
	Synthetic bool `parquet:"synthetic"`
}

// ConvertRecords converts schema.Record values to KpiRow for Parquet export.
func ConvertRecords(records []schema.Record) ([]KpiRow, error) {
	result := make([]KpiRow, len(records))
	for i, record := range records {
		row := KpiRow{
			ID:            record.ID,
			Key:           record.Key,
			NumberValue:   record.Number,
			StringValue:   record.String,
			MoneyCurrency: record.Currency,
			CreatedAt:     record.CreatedAt.UTC(),
			UpdatedAt:     record.UpdatedAt.UTC(),
			Synthetic:     record.Synthetic,
		}
		if len(record.JSON) > 0 {
			s := string(record.JSON)
			row.JSONValue = &s
		}
		if record.Money != nil {
			s := record.Money.String()
			row.MoneyValue = &s
		}
		if record.Metadata != nil {
			raw, err := json.Marshal(record.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metadata of %q: %w", record.Key, err)
			}
			s := string(raw)
			row.Metadata = &s
		}
		result[i] = row
	}
	return result, nil
}

// WriteKpiRowsParquet writes a slice of KpiRow structs to a Parquet file.
func WriteKpiRowsParquet(data []KpiRow, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is derived from the KpiRow struct tags
	writer := parquet.NewGenericWriter[KpiRow](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}

	// Close flushes the footer, so its error matters
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ReadKpiRowsParquet reads every KpiRow from a Parquet file.
func ReadKpiRowsParquet(inputPath string) ([]KpiRow, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[KpiRow](file)
	defer func() { _ = reader.Close() }()

	rows := make([]KpiRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read parquet file: %w", err)
	}
	return rows[:n], nil
}
