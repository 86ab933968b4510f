// Package state holds the bubbletea model of the notification view. It keeps
// no business state: everything shown comes from the notification store.
package state

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cristianoliveira/job-intray/internal/jobtype"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

const defaultViewportWidth = 80

// SyncFunc starts a bank sync. Failures are reported through the store.
type SyncFunc func(ctx context.Context) error

// ClearJobFunc stops tracking jobType, e.g. through the job runner so its
// poller stops as well.
type ClearJobFunc func(jobType string)

// Option configures a Model.
type Option func(*Model)

// WithSync enables the sync key.
func WithSync(fn SyncFunc) Option {
	return func(m *Model) { m.sync = fn }
}

// WithClearJob replaces the store's ClearJob behind the clear-job key.
func WithClearJob(fn ClearJobFunc) Option {
	return func(m *Model) { m.clearJob = fn }
}

// WithNow replaces the clock used for ages and elapsed times.
func WithNow(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Model represents the TUI model for bubbletea.
type Model struct {
	store    *notification.Store
	events   <-chan notification.Event
	cancel   func()
	snapshot notification.Snapshot

	cursor    int
	jobCursor int
	showJobs  bool
	width     int
	height    int
	closed    bool

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	sync     SyncFunc
	clearJob ClearJobFunc
	now      func() time.Time
}

// NewModel subscribes to store and returns the model. Call Close when done.
func NewModel(store *notification.Store, opts ...Option) *Model {
	if store == nil {
		panic("NewModel: store cannot be nil")
	}
	events, cancel := store.Subscribe()
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	m := &Model{
		store:    store,
		events:   events,
		cancel:   cancel,
		snapshot: store.Snapshot(),
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		now:      time.Now,
	}
	m.clearJob = store.ClearJob
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close drops the store subscription.
func (m *Model) Close() {
	m.cancel()
}

// Init starts listening for store events and the elapsed-time tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick(), m.spinner.Tick)
}

// Update handles messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case storeEventMsg:
		m.apply(msg.event.Snapshot)
		return m, waitForEvent(m.events)
	case storeClosedMsg:
		m.closed = true
		return m, nil
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case syncDoneMsg:
		m.refresh()
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Jobs):
		m.showJobs = !m.showJobs
		m.jobCursor = 0
	case key.Matches(msg, m.keys.Up):
		m.move(-1)
	case key.Matches(msg, m.keys.Down):
		m.move(1)
	case key.Matches(msg, m.keys.Dismiss):
		if n, ok := m.Selected(); ok {
			m.store.Dismiss(n.ID)
		}
	case key.Matches(msg, m.keys.Activate):
		if n, ok := m.Selected(); ok {
			m.store.Activate(n.ID)
		}
	case key.Matches(msg, m.keys.ClearJob):
		if jobType := m.selectedJobType(); jobType != "" {
			m.clearJob(jobType)
		}
	case key.Matches(msg, m.keys.ClearAll):
		m.store.ClearAll()
	case key.Matches(msg, m.keys.Sync):
		if m.sync != nil {
			fn := m.sync
			return m, func() tea.Msg {
				return syncDoneMsg{err: fn(context.Background())}
			}
		}
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

// refresh reads the store directly so key actions show without waiting for
// the event to come around.
func (m *Model) refresh() {
	m.apply(m.store.Snapshot())
}

// apply installs snap unless a newer snapshot is already shown.
func (m *Model) apply(snap notification.Snapshot) {
	if snap.Version < m.snapshot.Version {
		return
	}
	m.snapshot = snap
	m.clamp()
}

func (m *Model) move(delta int) {
	if m.showJobs {
		m.jobCursor += delta
	} else {
		m.cursor += delta
	}
	m.clamp()
}

func (m *Model) clamp() {
	clampTo := func(v, n int) int {
		if v >= n {
			v = n - 1
		}
		if v < 0 {
			v = 0
		}
		return v
	}
	m.cursor = clampTo(m.cursor, len(m.snapshot.Notifications))
	m.jobCursor = clampTo(m.jobCursor, len(m.snapshot.ActiveJobs))
}

// Selected returns the notification under the cursor.
func (m *Model) Selected() (notification.Notification, bool) {
	ns := m.snapshot.Notifications
	if m.cursor < 0 || m.cursor >= len(ns) {
		return notification.Notification{}, false
	}
	return ns[m.cursor], true
}

// JobEntry is one running job as shown in the dialog.
type JobEntry struct {
	Type    string
	Label   string
	JobID   string
	Elapsed time.Duration
}

// Jobs returns the running jobs, oldest first.
func (m *Model) Jobs() []JobEntry {
	now := m.now()
	out := make([]JobEntry, 0, len(m.snapshot.ActiveJobs))
	for t, j := range m.snapshot.ActiveJobs {
		out = append(out, JobEntry{Type: t, Label: jobtype.Label(t), JobID: j.JobID, Elapsed: j.Elapsed(now)})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Elapsed != out[k].Elapsed {
			return out[i].Elapsed > out[k].Elapsed
		}
		return out[i].Type < out[k].Type
	})
	return out
}

func (m *Model) selectedJobType() string {
	if m.showJobs {
		jobs := m.Jobs()
		if m.jobCursor < len(jobs) {
			return jobs[m.jobCursor].Type
		}
		return ""
	}
	if n, ok := m.Selected(); ok {
		return n.JobType
	}
	return ""
}

// ShowingJobs reports whether the jobs dialog is open.
func (m *Model) ShowingJobs() bool {
	return m.showJobs
}
