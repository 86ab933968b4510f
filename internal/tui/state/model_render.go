package state

import (
	"strings"

	"github.com/cristianoliveira/job-intray/internal/tui/render"
)

// View renders the TUI.
func (m *Model) View() string {
	width := m.width
	if width == 0 {
		width = defaultViewportWidth
	}
	now := m.now()

	var s strings.Builder
	s.WriteString(render.Header(width, len(m.snapshot.Notifications), len(m.snapshot.ActiveJobs)))
	s.WriteString("\n")

	if len(m.snapshot.Notifications) == 0 {
		s.WriteString(render.Empty())
	}
	for i, n := range m.snapshot.Notifications {
		if i > 0 {
			s.WriteString("\n")
		}
		s.WriteString(render.Row(render.RowState{
			Notification: n,
			Width:        width,
			Selected:     !m.showJobs && i == m.cursor,
			Now:          now,
		}))
	}

	if m.showJobs {
		s.WriteString("\n\n")
		jobs := m.Jobs()
		entries := make([]render.JobEntry, 0, len(jobs))
		for _, j := range jobs {
			entries = append(entries, render.JobEntry(j))
		}
		s.WriteString(render.JobsDialog(render.JobsState{
			Jobs:     entries,
			Selected: m.jobCursor,
			Spinner:  m.spinner.View(),
			Width:    width,
		}))
	}

	s.WriteString("\n\n")
	s.WriteString(m.help.View(m.keys))
	return s.String()
}
