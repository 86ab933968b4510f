package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Summarizer turns the result object of a finished job into a display message.
type Summarizer interface {
	Summarize(result json.RawMessage) string
}

// SummaryFunc adapts a function to Summarizer.
type SummaryFunc func(result json.RawMessage) string

// Summarize calls f.
func (f SummaryFunc) Summarize(result json.RawMessage) string {
	return f(result)
}

// Field extracts one piece of a result object.
type Field struct {
	Path   string
	render func(v interface{}, doc interface{}) (string, bool)
}

// Count renders a numeric field as "<n> <label>", e.g. "3 added".
func Count(label, path string) Field {
	return Field{
		Path: path,
		render: func(v interface{}, _ interface{}) (string, bool) {
			d, ok := toDecimal(v)
			if !ok {
				return "", false
			}
			return fmt.Sprintf("%s %s", d.String(), label), true
		},
	}
}

// Text renders a string field as "<label> <value>".
func Text(label, path string) Field {
	return Field{
		Path: path,
		render: func(v interface{}, _ interface{}) (string, bool) {
			s, ok := v.(string)
			if !ok || s == "" {
				return "", false
			}
			return strings.TrimSpace(label + " " + s), true
		},
	}
}

// MoneyField renders an amount as "<label> <formatted amount>". The currency is
// read from currencyPath when present, otherwise defaultCurrency is used.
func MoneyField(label, amountPath, currencyPath, defaultCurrency string) Field {
	return Field{
		Path: amountPath,
		render: func(v interface{}, doc interface{}) (string, bool) {
			amount, ok := toDecimal(v)
			if !ok {
				return "", false
			}
			code := defaultCurrency
			if currencyPath != "" {
				if c, err := jsonpath.Get(currencyPath, doc); err == nil {
					if s, ok := c.(string); ok && s != "" {
						code = strings.ToUpper(s)
					}
				}
			}
			formatted, ok := FormatAmount(amount, code)
			if !ok {
				return "", false
			}
			return strings.TrimSpace(label + " " + formatted), true
		},
	}
}

// FormatAmount formats a decimal amount in the given ISO currency.
func FormatAmount(amount decimal.Decimal, code string) (string, bool) {
	cur := money.GetCurrency(code)
	if cur == nil {
		return "", false
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display(), true
}

// FieldSummary builds "<Prefix>: <field>, <field>, ..." from a result object.
// Fields missing from the result are skipped. When no field can be rendered
// the summary is Empty, or Prefix alone.
type FieldSummary struct {
	Prefix string
	Fields []Field
	Empty  string
}

// Summarize implements Summarizer.
func (s FieldSummary) Summarize(result json.RawMessage) string {
	parts := s.render(result)
	if len(parts) == 0 {
		if s.Empty != "" {
			return s.Empty
		}
		return s.Prefix
	}
	if s.Prefix == "" {
		return strings.Join(parts, ", ")
	}
	return s.Prefix + ": " + strings.Join(parts, ", ")
}

func (s FieldSummary) render(result json.RawMessage) []string {
	if len(result) == 0 {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal(result, &doc); err != nil || doc == nil {
		return nil
	}
	var parts []string
	for _, f := range s.Fields {
		v, err := jsonpath.Get(f.Path, doc)
		if err != nil || v == nil {
			continue
		}
		if text, ok := f.render(v, doc); ok {
			parts = append(parts, text)
		}
	}
	return parts
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case []interface{}:
		// Lists count as their length, e.g. "$.deleted_ids".
		return decimal.NewFromInt(int64(len(n))), true
	default:
		return decimal.Decimal{}, false
	}
}
