package jobs

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSummary(t *testing.T) {
	sync := FieldSummary{
		Prefix: "Synced",
		Fields: []Field{
			Count("added", "$.added"),
			Count("modified", "$.modified"),
			Count("removed", "$.removed"),
		},
		Empty: "Bank sync completed",
	}

	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"all fields", `{"added":3,"modified":1,"removed":0}`, "Synced: 3 added, 1 modified, 0 removed"},
		{"missing field skipped", `{"added":3}`, "Synced: 3 added"},
		{"no fields", `{"other":true}`, "Bank sync completed"},
		{"null result", `null`, "Bank sync completed"},
		{"empty result", ``, "Bank sync completed"},
		{"invalid json", `{`, "Bank sync completed"},
		{"string numbers", `{"added":"7"}`, "Synced: 7 added"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sync.Summarize(json.RawMessage(tt.result)))
		})
	}
}

func TestFieldSummaryNestedAndLists(t *testing.T) {
	s := FieldSummary{
		Prefix: "Deleted",
		Fields: []Field{
			Count("transactions", "$.deleted_ids"),
			Text("from", "$.account.name"),
		},
	}
	got := s.Summarize(json.RawMessage(`{"deleted_ids":["a","b"],"account":{"name":"Checking"}}`))
	assert.Equal(t, "Deleted: 2 transactions, from Checking", got)
}

func TestMoneyField(t *testing.T) {
	s := FieldSummary{
		Prefix: "Converted",
		Fields: []Field{
			Count("expenses", "$.converted"),
			MoneyField("totalling", "$.total_amount", "$.currency", "USD"),
		},
	}

	got := s.Summarize(json.RawMessage(`{"converted":4,"total_amount":"125.5","currency":"usd"}`))
	assert.Equal(t, "Converted: 4 expenses, totalling $125.50", got)

	got = s.Summarize(json.RawMessage(`{"converted":1,"total_amount":12}`))
	assert.Equal(t, "Converted: 1 expenses, totalling $12.00", got)

	got = s.Summarize(json.RawMessage(`{"converted":1,"total_amount":12,"currency":"???"}`))
	assert.Equal(t, "Converted: 1 expenses", got)
}

func TestFormatAmount(t *testing.T) {
	got, ok := FormatAmount(decimal.RequireFromString("1234.567"), "EUR")
	require.True(t, ok)
	assert.Contains(t, got, "€")
	assert.Contains(t, got, "57")

	_, ok = FormatAmount(decimal.NewFromInt(1), "NOPE")
	assert.False(t, ok)
}

func TestSummaryFunc(t *testing.T) {
	var s Summarizer = SummaryFunc(func(result json.RawMessage) string { return "custom " + string(result) })
	assert.Equal(t, "custom {}", s.Summarize(json.RawMessage(`{}`)))
}
