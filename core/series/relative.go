package series

import (
	"github.com/huangsam/kpi/schema"
	"github.com/shopspring/decimal"
)

// Variation compares the last record of a series with the first one.
// Ratios are delta divided by the earlier value.
type Variation struct {
	NumberDelta *float64         `json:"number_delta"`
	NumberRatio *float64         `json:"number_ratio"`
	MoneyDelta  *decimal.Decimal `json:"money_delta"`
	MoneyRatio  *float64         `json:"money_ratio"`
}

// ToRelative returns a series of the same length where each record holds the difference
// between its numeric and monetary values and those of the record before it.
// The first record has no predecessor, so its deltas are nil. String and JSON slots
// are not diffable and are always nil.
func (s Series) ToRelative() Series {
	sorted := s.Sorted()

	out := make(Series, len(sorted))
	for i, r := range sorted {
		var prev *schema.Record
		if i > 0 {
			prev = &sorted[i-1]
		}
		out[i] = difference(r, prev)
	}
	return out
}

func difference(cur schema.Record, prev *schema.Record) schema.Record {
	d := schema.Record{
		Key:       cur.Key,
		CreatedAt: cur.CreatedAt,
		UpdatedAt: cur.UpdatedAt,
		Synthetic: true,
	}
	if cur.Currency != nil {
		currency := *cur.Currency
		d.Currency = &currency
	}
	if prev == nil {
		return d
	}

	if cur.Number != nil && prev.Number != nil {
		delta := *cur.Number - *prev.Number
		d.Number = &delta
	}
	if cur.Money != nil && prev.Money != nil {
		delta := cur.Money.Sub(*prev.Money)
		d.Money = &delta
	}
	return d
}

// Variation returns the change between the first and last records, or nil when the
// series has fewer than two records. Fields stay nil when a comparison is meaningless.
func (s Series) Variation() *Variation {
	if len(s) < 2 {
		return nil
	}
	first, _ := s.First()
	last, _ := s.Last()

	v := &Variation{}
	if first.Number != nil && last.Number != nil {
		delta := *last.Number - *first.Number
		v.NumberDelta = &delta
		if *first.Number != 0 {
			ratio := delta / *first.Number
			v.NumberRatio = &ratio
		}
	}
	if first.Money != nil && last.Money != nil {
		delta := last.Money.Sub(*first.Money)
		v.MoneyDelta = &delta
		if !first.Money.IsZero() {
			ratio := delta.Div(*first.Money).InexactFloat64()
			v.MoneyRatio = &ratio
		}
	}
	return v
}
