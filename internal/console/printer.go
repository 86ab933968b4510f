// Package console prints notification store events as coloured lines.
package console

import (
	"context"

	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

// Line is one printable store change.
type Line struct {
	Severity notification.Severity
	Text     string
	// Progress marks running-job updates, printed without a severity prefix.
	Progress bool
}

// Describe turns an event into a line. Removals and clears print nothing.
func Describe(ev notification.Event) (Line, bool) {
	switch ev.Kind {
	case notification.EventAdded, notification.EventJobRegistered, notification.EventUpdated:
	default:
		return Line{}, false
	}
	n, ok := find(ev.Snapshot, ev.NotificationID)
	if !ok {
		return Line{}, false
	}
	if n.Persistent && n.IsJob() {
		return Line{Severity: n.Severity, Text: n.Message, Progress: true}, true
	}
	return Line{Severity: n.Severity, Text: n.Message}, true
}

func find(snap notification.Snapshot, id notification.ID) (notification.Notification, bool) {
	for _, n := range snap.Notifications {
		if n.ID == id {
			return n, true
		}
	}
	return notification.Notification{}, false
}

// Print writes a line through the colors package.
func Print(l Line) {
	if l.Progress {
		colors.LogInfo(l.Text)
		return
	}
	switch l.Severity {
	case notification.SeveritySuccess:
		colors.Success(l.Text)
	case notification.SeverityError:
		colors.Error(l.Text)
	case notification.SeverityWarning:
		colors.Warning(l.Text)
	default:
		colors.Info(l.Text)
	}
}

// Printer prints the events of one store subscription.
type Printer struct {
	events <-chan notification.Event
	cancel func()
	last   map[notification.ID]Line
}

// NewPrinter subscribes to store right away so no event is missed between
// construction and Run.
func NewPrinter(store *notification.Store) *Printer {
	events, cancel := store.Subscribe()
	return &Printer{events: events, cancel: cancel, last: make(map[notification.ID]Line)}
}

// Run prints events until ctx is done or the store closes. Events already
// buffered when the store closes are still printed. Repeated lines for the
// same notification are printed once.
func (p *Printer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			l, ok := Describe(ev)
			if !ok {
				continue
			}
			if prev, seen := p.last[ev.NotificationID]; seen && prev == l {
				continue
			}
			p.last[ev.NotificationID] = l
			Print(l)
		}
	}
}

// Close drops the subscription.
func (p *Printer) Close() {
	p.cancel()
}
