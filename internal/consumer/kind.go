// Package consumer starts backend jobs and hands them to pollers. Each Kind
// describes one feature area: how to validate its input, which endpoint starts
// it, and how its result is summarized.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/jobtype"
)

// Backend is what consumers need from the API client.
type Backend interface {
	jobs.StatusSource
	StartPlaidSync(ctx context.Context, itemID string) (string, error)
	StartConversion(ctx context.Context, transactionIDs []string) (string, error)
	StartBulkDelete(ctx context.Context, transactionIDs []string) (string, error)
	StartStatementProcessing(ctx context.Context, statementID string) (string, error)
	Refresh(ctx context.Context, resource string) (int, error)
}

// Request carries the input of a job start. Each kind reads the fields it needs.
type Request struct {
	ItemID         string
	TransactionIDs []string
	StatementID    string
}

// Kind describes one job-starting feature.
type Kind struct {
	// Name is the short name used on the command line.
	Name        string
	Type        func(req Request) string
	Validate    func(req Request) error
	Start       func(ctx context.Context, b Backend, req Request) (string, error)
	Summarizer  jobs.Summarizer
	ErrorFormat jobs.ErrorFormat
	// Refetch lists the resource collections reloaded after success.
	Refetch []string
	// Matches reports whether a registered job type belongs to this kind.
	Matches func(jobType string) bool
}

// JobType returns the job type for req.
func (k Kind) JobType(req Request) string {
	return k.Type(req)
}

// Label returns the human name of the job started by req.
func (k Kind) Label(req Request) string {
	return jobtype.Label(k.JobType(req))
}

func fixedType(t string) func(Request) string {
	return func(Request) string { return t }
}

func exactMatch(t string) func(string) bool {
	return func(jobType string) bool { return jobType == t }
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// PlaidSync pulls new transactions for a linked bank item.
var PlaidSync = Kind{
	Name: "sync",
	Type: fixedType(jobtype.PlaidSync),
	Validate: func(req Request) error {
		if strings.TrimSpace(req.ItemID) == "" {
			return invalid("choose a bank connection to sync")
		}
		return nil
	},
	Start: func(ctx context.Context, b Backend, req Request) (string, error) {
		return b.StartPlaidSync(ctx, strings.TrimSpace(req.ItemID))
	},
	Summarizer: jobs.FieldSummary{
		Prefix: "Bank sync complete",
		Fields: []jobs.Field{
			jobs.Count("added", "$.added"),
			jobs.Count("modified", "$.modified"),
			jobs.Count("removed", "$.removed"),
		},
	},
	ErrorFormat: jobs.Verbatim,
	Refetch:     []string{"transactions", "accounts"},
	Matches:     exactMatch(jobtype.PlaidSync),
}

// Conversion turns transactions into expenses. Its backend reports failures as
// multi-line traces, so only the last line is shown.
var Conversion = Kind{
	Name: "convert",
	Type: fixedType(jobtype.ConvertTransactions),
	Validate: func(req Request) error {
		if len(cleanIDs(req.TransactionIDs)) == 0 {
			return invalid("select at least one transaction to convert")
		}
		return nil
	},
	Start: func(ctx context.Context, b Backend, req Request) (string, error) {
		return b.StartConversion(ctx, cleanIDs(req.TransactionIDs))
	},
	Summarizer: jobs.FieldSummary{
		Prefix: "Conversion complete",
		Fields: []jobs.Field{
			jobs.Count("converted", "$.converted"),
			jobs.MoneyField("totalling", "$.total_amount", "$.currency", "USD"),
		},
	},
	ErrorFormat: jobs.LastLine,
	Refetch:     []string{"transactions", "expenses"},
	Matches:     exactMatch(jobtype.ConvertTransactions),
}

// BulkDelete removes a set of transactions.
var BulkDelete = Kind{
	Name: "delete",
	Type: fixedType(jobtype.BulkDelete),
	Validate: func(req Request) error {
		if len(cleanIDs(req.TransactionIDs)) == 0 {
			return invalid("select at least one transaction to delete")
		}
		return nil
	},
	Start: func(ctx context.Context, b Backend, req Request) (string, error) {
		return b.StartBulkDelete(ctx, cleanIDs(req.TransactionIDs))
	},
	Summarizer: jobs.FieldSummary{
		Prefix: "Bulk delete complete",
		Fields: []jobs.Field{
			jobs.Count("deleted", "$.deleted"),
		},
	},
	ErrorFormat: jobs.Verbatim,
	Refetch:     []string{"transactions"},
	Matches:     exactMatch(jobtype.BulkDelete),
}

// StatementProcessing imports an uploaded statement. Each statement gets its
// own job type so several can run at once.
var StatementProcessing = Kind{
	Name: "import-statement",
	Type: func(req Request) string {
		return jobtype.StatementProcessing(strings.TrimSpace(req.StatementID))
	},
	Validate: func(req Request) error {
		if strings.TrimSpace(req.StatementID) == "" {
			return invalid("choose a statement to import")
		}
		return nil
	},
	Start: func(ctx context.Context, b Backend, req Request) (string, error) {
		return b.StartStatementProcessing(ctx, strings.TrimSpace(req.StatementID))
	},
	Summarizer: jobs.FieldSummary{
		Prefix: "Statement imported",
		Fields: []jobs.Field{
			jobs.Count("transactions", "$.transactions"),
		},
	},
	ErrorFormat: jobs.Verbatim,
	Refetch:     []string{"transactions", "statements"},
	Matches: func(jobType string) bool {
		return strings.HasPrefix(jobType, jobtype.StatementProcessingPrefix)
	},
}

// Kinds lists every known kind.
func Kinds() []Kind {
	return []Kind{PlaidSync, Conversion, BulkDelete, StatementProcessing}
}

// ErrUnknownKind is returned when a job type belongs to no kind.
var ErrUnknownKind = errors.New("unknown job kind")

// KindForType finds the kind a registered job type belongs to.
func KindForType(jobType string) (Kind, error) {
	for _, k := range Kinds() {
		if k.Matches(jobType) {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: %s", ErrUnknownKind, jobType)
}
