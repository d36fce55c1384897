package schema

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value holds the observation of a KPI record. Exactly one slot is meant to be
// populated; the others stay nil. Currency only accompanies Money.
type Value struct {
	Number   *float64         `json:"number_value,omitempty"`
	String   *string          `json:"string_value,omitempty"`
	JSON     json.RawMessage  `json:"json_value,omitempty"`
	Money    *decimal.Decimal `json:"money_value,omitempty"`
	Currency *string          `json:"money_currency,omitempty"`
}

// NumberValue returns a Value with the numeric slot set.
func NumberValue(n float64) Value {
	return Value{Number: &n}
}

// StringValue returns a Value with the string slot set.
func StringValue(s string) Value {
	return Value{String: &s}
}

// JSONValue marshals v into the structured slot.
func JSONValue(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{JSON: raw}, nil
}

// MoneyValue returns a Value with the monetary slot and its currency code set.
func MoneyValue(amount decimal.Decimal, currency string) Value {
	currency = strings.ToUpper(currency)
	return Value{Money: &amount, Currency: &currency}
}

// Kind reports which slot is populated, checking number, money, string, then JSON.
func (v Value) Kind() ValueKind {
	switch {
	case v.Number != nil:
		return NumberKind
	case v.Money != nil:
		return MoneyKind
	case v.String != nil:
		return StringKind
	case len(v.JSON) > 0:
		return JSONKind
	default:
		return EmptyKind
	}
}

// IsZero reports whether no slot is populated.
func (v Value) IsZero() bool {
	return v.Kind() == EmptyKind && v.Currency == nil
}

// Clone returns a deep copy so the result never aliases v's slots.
func (v Value) Clone() Value {
	var out Value
	if v.Number != nil {
		n := *v.Number
		out.Number = &n
	}
	if v.String != nil {
		s := *v.String
		out.String = &s
	}
	if v.JSON != nil {
		out.JSON = slices.Clone(v.JSON)
	}
	if v.Money != nil {
		m := *v.Money
		out.Money = &m
	}
	if v.Currency != nil {
		c := *v.Currency
		out.Currency = &c
	}
	return out
}

// Record is a point-in-time KPI observation.
// CreatedAt is the as-of date of the KPI and anchors interval bucketing.
type Record struct {
	ID        int64          `json:"id,omitempty"`
	Key       string         `json:"key"`
	Value                    // embedded value slots
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Synthetic marks records built in memory by gap filling or relative conversion.
	// They have no storage identity.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Value = r.Value.Clone()
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}
	return out
}

// Namespace returns the part of the key before the first separator.
func (r Record) Namespace() string {
	ns, _, _ := strings.Cut(r.Key, KeySeparator)
	return ns
}

// Metric returns the part of the key after the first separator.
func (r Record) Metric() string {
	_, metric, _ := strings.Cut(r.Key, KeySeparator)
	return metric
}
