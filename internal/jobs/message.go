package jobs

import (
	"fmt"
	"strings"
)

// GenericFailureMessage is shown when a failed job carries no error text.
const GenericFailureMessage = "Job failed"

// ErrorFormat selects how the error field of a failed job becomes a message.
type ErrorFormat int

const (
	// Verbatim shows the whole error string, trimmed.
	Verbatim ErrorFormat = iota
	// LastLine shows the last non-empty line, which is where tracebacks put the cause.
	LastLine
)

// String returns the name of the format.
func (f ErrorFormat) String() string {
	switch f {
	case LastLine:
		return "last-line"
	default:
		return "verbatim"
	}
}

// LastNonEmptyLine returns the last line of s that is not blank, trimmed.
func LastNonEmptyLine(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// FailureMessage derives the display message of a failed job.
func FailureMessage(s Status, format ErrorFormat) string {
	var msg string
	switch format {
	case LastLine:
		msg = LastNonEmptyLine(s.Error)
	default:
		msg = strings.TrimSpace(s.Error)
	}
	if msg == "" {
		return GenericFailureMessage
	}
	return msg
}

// ExpiredMessage is the warning shown when the job record disappeared.
func ExpiredMessage(label string) string {
	return fmt.Sprintf("%s job expired or was removed", label)
}

// LostMessage is the error shown when the status endpoint kept failing.
func LostMessage(label string, err error) string {
	return fmt.Sprintf("%s: could not check job status: %v", label, err)
}

// TimeoutMessage is the warning shown when tracking stopped before the job ended.
func TimeoutMessage(label string) string {
	return fmt.Sprintf("%s is taking too long; stopped tracking (the job keeps running on the server)", label)
}

// StageMessage is the progress text shown while a job reports an intermediate stage.
func StageMessage(label string, meta *Meta) string {
	if meta == nil || meta.Stage == "" {
		return label + "…"
	}
	if meta.Progress != nil {
		return fmt.Sprintf("%s: %s (%.0f%%)", label, meta.Stage, *meta.Progress)
	}
	return fmt.Sprintf("%s: %s", label, meta.Stage)
}
