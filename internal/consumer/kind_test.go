package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForType(t *testing.T) {
	tests := []struct {
		jobType string
		want    string
	}{
		{"plaid-sync", "sync"},
		{"convert-transactions", "convert"},
		{"bulk-delete", "delete"},
		{"statement-process-42", "import-statement"},
	}
	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			k, err := KindForType(tt.jobType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k.Name)
		})
	}

	_, err := KindForType("plaid-sync-extra")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestValidation(t *testing.T) {
	assert.ErrorIs(t, PlaidSync.Validate(Request{}), ErrInvalidRequest)
	assert.NoError(t, PlaidSync.Validate(Request{ItemID: "i"}))
	assert.ErrorIs(t, BulkDelete.Validate(Request{TransactionIDs: []string{""}}), ErrInvalidRequest)
	assert.ErrorIs(t, StatementProcessing.Validate(Request{StatementID: "  "}), ErrInvalidRequest)
}

func TestCleanIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, cleanIDs([]string{" a", "b", "a", ""}))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Transaction conversion", Conversion.Label(Request{}))
	assert.Equal(t, "Statement processing", StatementProcessing.Label(Request{StatementID: "s"}))
}
