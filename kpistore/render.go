package kpistore

import (
	"io"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/internal/outwriter"
	"github.com/huangsam/kpi/schema"
)

// WriteSeries renders records in the output mode and precision of cfg.
// A nil cfg renders a text table with the default precision.
func WriteSeries(w io.Writer, records []schema.Record, cfg *contract.Config) error {
	opts := outwriter.Options{Mode: contract.DefaultOutput, Precision: contract.DefaultPrecision}
	if cfg != nil {
		opts.Mode = cfg.Output
		opts.Precision = cfg.Precision
	}
	return outwriter.WriteSeries(w, records, opts)
}
