package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/cristianoliveira/job-intray/internal/jobtype"
)

// Markdown renders entries as a markdown table for the history command.
func Markdown(entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Job history\n\n")
	if len(entries) == 0 {
		b.WriteString("_No jobs recorded yet._\n")
		return b.String()
	}
	b.WriteString("| Finished | Job | Outcome | Duration | Message |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			escapeCell(jobtype.Label(e.JobType)),
			outcomeBadge(e.Outcome),
			e.Duration().Round(time.Second),
			escapeCell(e.Message),
		)
	}
	return b.String()
}

func outcomeBadge(outcome string) string {
	switch outcome {
	case "finished":
		return "**finished**"
	case "failed", "lost":
		return "_" + outcome + "_"
	default:
		return outcome
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
