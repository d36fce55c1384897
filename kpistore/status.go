package kpistore

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/fatih/color"
	"github.com/huangsam/kpi/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const statusTimeLayout = "2006-01-02 15:04:05"

var (
	connectedColor    = color.New(color.FgGreen, color.Bold)
	disconnectedColor = color.New(color.FgRed, color.Bold)
)

// PrintStatus writes store status information followed by a per-key record table.
func PrintStatus(w io.Writer, status schema.StoreStatus) error {
	connected := disconnectedColor.Sprint("no")
	if status.Connected {
		connected = connectedColor.Sprint("yes")
	}
	if _, err := fmt.Fprintf(w, "KPI Backend: %s\nConnected: %s\n", status.Backend, connected); err != nil {
		return err
	}
	if !status.Connected {
		return nil
	}

	if _, err := fmt.Fprintf(w, "Total Records: %d\nDistinct Keys: %d\n", status.TotalRecords, status.DistinctKeys); err != nil {
		return err
	}
	if status.TotalRecords > 0 {
		if _, err := fmt.Fprintf(w, "Oldest Record: %s\nNewest Record: %s\n",
			status.OldestRecord.Format(statusTimeLayout), status.NewestRecord.Format(statusTimeLayout)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Table Size: %d bytes\n", status.TableSizeBytes); err != nil {
		return err
	}
	if len(status.RecordsPerKey) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Key", "Records"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, key := range slices.Sorted(maps.Keys(status.RecordsPerKey)) {
		data = append(data, []string{key, strconv.FormatInt(status.RecordsPerKey[key], 10)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
