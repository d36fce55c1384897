// Package outwriter renders KPI series as text tables, JSON or CSV.
package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/huangsam/kpi/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
)

// DateTimeFormat is how record dates are rendered in tables and CSV.
const DateTimeFormat = "2006-01-02 15:04:05"

// Options controls how a series is rendered.
type Options struct {
	Mode      schema.OutputMode // Defaults to schema.TextOut
	Precision int               // Digits after the decimal point for numbers and money
	Width     int               // Table width override; 0 detects the terminal width
}

// WriteSeries renders records to w in the configured output mode.
func WriteSeries(w io.Writer, records []schema.Record, opts Options) error {
	switch opts.Mode {
	case schema.TextOut, "":
		return writeSeriesTable(w, records, opts)
	case schema.JSONOut:
		return writeJSON(w, records)
	case schema.CSVOut:
		return writeSeriesCSV(w, records, opts)
	default:
		return fmt.Errorf("unsupported output mode: %s", opts.Mode)
	}
}

// writeSeriesTable prints one row per record; synthetic records are flagged.
func writeSeriesTable(w io.Writer, records []schema.Record, opts Options) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Date", "Key", "Value", "Kind", "Filled"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	maxValueWidth := getMaxValueWidth(w, opts.Width)
	var data [][]string
	for _, r := range records {
		filled := ""
		if r.Synthetic {
			filled = "yes"
		}
		data = append(data, []string{
			r.CreatedAt.Format(DateTimeFormat),
			r.Key,
			truncate(formatValue(r.Value, opts.Precision), maxValueWidth),
			string(r.Kind()),
			filled,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeSeriesCSV(w io.Writer, records []schema.Record, opts Options) error {
	return writeCSVWithHeader(w, []string{"id", "key", "created_at", "kind", "value", "currency", "synthetic"}, func(cw *csv.Writer) error {
		for _, r := range records {
			currency := ""
			if r.Currency != nil {
				currency = *r.Currency
			}
			row := []string{
				strconv.FormatInt(r.ID, 10),
				r.Key,
				r.CreatedAt.Format(time.RFC3339),
				string(r.Kind()),
				formatValue(r.Value, opts.Precision),
				currency,
				strconv.FormatBool(r.Synthetic),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// formatValue renders whichever slot is populated. Money includes its currency in text form only.
func formatValue(v schema.Value, precision int) string {
	switch v.Kind() {
	case schema.NumberKind:
		return strconv.FormatFloat(*v.Number, 'f', precision, 64)
	case schema.MoneyKind:
		return v.Money.StringFixed(int32(precision))
	case schema.StringKind:
		return *v.String
	case schema.JSONKind:
		return string(v.JSON)
	default:
		return ""
	}
}

// getMaxValueWidth returns the widest value cell that keeps a table inside the terminal.
func getMaxValueWidth(w io.Writer, override int) int {
	termWidth := override
	if termWidth == 0 {
		termWidth = 80 // Conservative default for pipes and CI
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			if detected, _, err := term.GetSize(int(f.Fd())); err == nil && detected > 0 {
				termWidth = detected
			}
		}
	}

	// Reserve space for date, key, kind and filled columns with borders
	const baseWidth = 60
	return max(termWidth-baseWidth, 12)
}

// truncate shortens s to maxWidth runes, marking the cut with "...".
func truncate(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return s
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeCSVWithHeader handles the common pattern of creating a CSV writer,
// writing a header, and writing data rows.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := writeRows(csvWriter); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
