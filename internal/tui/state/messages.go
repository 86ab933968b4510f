package state

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

// storeEventMsg carries one store event into the update loop.
type storeEventMsg struct {
	event notification.Event
}

// storeClosedMsg is sent once the store subscription ends.
type storeClosedMsg struct{}

// tickMsg refreshes elapsed times.
type tickMsg time.Time

// syncDoneMsg reports the result of a sync started from the keyboard.
type syncDoneMsg struct {
	err error
}

const tickInterval = time.Second

func waitForEvent(events <-chan notification.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return storeClosedMsg{}
		}
		return storeEventMsg{event: ev}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
