// Package render draws the notification list and the running-jobs dialog.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

const (
	severityWidth        = 9
	ageWidth             = 5
	spacesBetweenColumns = 4
	defaultMessageWidth  = 50
	dialogMinWidth       = 40
)

// RowState defines the inputs needed to render a notification row.
type RowState struct {
	Notification notification.Notification
	Width        int
	Selected     bool
	Now          time.Time
}

// JobEntry is one line of the running-jobs dialog.
type JobEntry struct {
	Type    string
	Label   string
	JobID   string
	Elapsed time.Duration
}

// JobsState defines the inputs needed to render the running-jobs dialog.
type JobsState struct {
	Jobs     []JobEntry
	Selected int
	Spinner  string
	Width    int
}

// Header renders the list header.
func Header(width, count, running int) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ansiColorNumber(colors.Blue)))

	title := fmt.Sprintf("Notifications (%d)", count)
	if running > 0 {
		title += fmt.Sprintf("  ·  %d running", running)
	}
	return headerStyle.Render(truncate(title, width))
}

// Empty renders the placeholder shown when there is nothing to list.
func Empty() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("No notifications")
}

// Row renders a single notification row.
func Row(state RowState) string {
	n := state.Notification
	rowStyle := lipgloss.NewStyle()
	if state.Selected {
		rowStyle = rowStyle.Background(lipgloss.Color(ansiColorNumber(colors.Blue))).Foreground(lipgloss.Color("0"))
	}
	iconStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ansiColorNumber(colors.ForSeverity(string(n.Severity)))))
	if state.Selected {
		iconStyle = rowStyle
	}

	messageWidth := calculateMessageWidth(state.Width)
	if state.Width == 0 || messageWidth < 10 {
		messageWidth = defaultMessageWidth
	}

	message := n.Message
	if n.Action != nil && n.Action.Label != "" {
		message += " [" + n.Action.Label + "]"
	}
	message = truncate(message, messageWidth)
	age := calculateAge(n.Timestamp, state.Now)
	if n.Persistent {
		age = "…"
	}

	icon := fmt.Sprintf("%-*s", severityWidth, SeverityIcon(n.Severity))
	rest := fmt.Sprintf("  %-*s  %*s", messageWidth, message, ageWidth, age)
	return iconStyle.Render(icon) + rowStyle.Render(rest)
}

// JobsDialog renders the running-jobs dialog.
func JobsDialog(state JobsState) string {
	width := state.Width
	if width < dialogMinWidth {
		width = dialogMinWidth
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ansiColorNumber(colors.Cyan))).
		Padding(0, 1).
		Width(width - 2)
	title := lipgloss.NewStyle().Bold(true).Render("Running jobs")

	if len(state.Jobs) == 0 {
		return box.Render(title + "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("No jobs running"))
	}

	lines := []string{title}
	for i, j := range state.Jobs {
		line := fmt.Sprintf("%s %s  %s  (%s)", state.Spinner, j.Label, FormatElapsed(j.Elapsed), j.JobID)
		line = truncate(line, width-4)
		if i == state.Selected {
			line = lipgloss.NewStyle().Reverse(true).Render(line)
		}
		lines = append(lines, line)
	}
	return box.Render(strings.Join(lines, "\n"))
}

// SeverityIcon returns the short marker shown in front of a notification.
func SeverityIcon(s notification.Severity) string {
	switch s {
	case notification.SeveritySuccess:
		return "✓ ok"
	case notification.SeverityError:
		return "✗ err"
	case notification.SeverityWarning:
		return "! wrn"
	default:
		return "i inf"
	}
}

// FormatElapsed renders a duration as m:ss, or h:mm:ss past an hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func calculateMessageWidth(width int) int {
	return width - severityWidth - ageWidth - spacesBetweenColumns
}

func truncate(value string, width int) string {
	if width <= 0 || utf8.RuneCountInString(value) <= width {
		return value
	}
	if width <= 3 {
		return string([]rune(value)[:width])
	}
	return string([]rune(value)[:width-3]) + "..."
}

func calculateAge(timestamp time.Time, now time.Time) string {
	if timestamp.IsZero() {
		return ""
	}
	if now.IsZero() {
		now = time.Now()
	}

	duration := now.Sub(timestamp)
	if duration < 0 {
		duration = 0
	}

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	return fmt.Sprintf("%dd", int(duration.Hours()/24))
}

// ansiColorNumber extracts the color number from an ANSI escape sequence.
// Example: "\033[0;34m" -> "34"
func ansiColorNumber(ansi string) string {
	if len(ansi) < 2 {
		return ""
	}
	lastSemicolon := strings.LastIndex(ansi, ";")
	if lastSemicolon == -1 {
		return ""
	}
	return ansi[lastSemicolon+1 : len(ansi)-1]
}
