// Package jobtype turns job-type identifiers into human labels.
package jobtype

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Well-known job types.
const (
	PlaidSync                 = "plaid-sync"
	ConvertTransactions       = "convert-transactions"
	BulkDelete                = "bulk-delete"
	StatementProcessingPrefix = "statement-process-"
)

// Rule maps the job types accepted by Match to Label.
type Rule struct {
	Match func(jobType string) bool
	Label string
}

// Prefix returns a rule matching every job type that starts with prefix.
func Prefix(prefix, label string) Rule {
	return Rule{
		Match: func(jobType string) bool { return strings.HasPrefix(jobType, prefix) },
		Label: label,
	}
}

// DefaultRules is the built-in label table, tried in order.
var DefaultRules = []Rule{
	Prefix(StatementProcessingPrefix, "Statement processing"),
	Prefix(PlaidSync, "Bank sync"),
	Prefix(ConvertTransactions, "Transaction conversion"),
	Prefix(BulkDelete, "Bulk delete"),
}

// Table is an ordered list of rules with a title-case fallback.
type Table struct {
	rules []Rule
}

// NewTable returns a table that tries rules before DefaultRules.
func NewTable(rules ...Rule) *Table {
	all := make([]Rule, 0, len(rules)+len(DefaultRules))
	all = append(all, rules...)
	all = append(all, DefaultRules...)
	return &Table{rules: all}
}

// Label returns the first matching label, or the kebab-case identifier
// converted to Title Case.
func (t *Table) Label(jobType string) string {
	for _, r := range t.rules {
		if r.Match != nil && r.Match(jobType) {
			return r.Label
		}
	}
	return TitleCase(jobType)
}

var defaultTable = NewTable()

// Label resolves jobType against the default table.
func Label(jobType string) string {
	return defaultTable.Label(jobType)
}

// StatementProcessing returns the job type of a statement processing job.
func StatementProcessing(statementID string) string {
	return StatementProcessingPrefix + statementID
}

// TitleCase converts "kebab-case_or_snake" to "Kebab Case Or Snake".
func TitleCase(jobType string) string {
	words := strings.FieldsFunc(jobType, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	if len(words) == 0 {
		return "Job"
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}
