package notification

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cristianoliveira/job-intray/internal/logging"
)

// Default durations applied when the store is built without overrides.
const (
	DefaultDuration         = 5000 * time.Millisecond
	DefaultErrorDuration    = 7000 * time.Millisecond
	DefaultResolvedDuration = 5000 * time.Millisecond

	subscriberBuffer = 64
)

// ErrJobRunning is returned by ClaimJob when the job type already has an active job.
var ErrJobRunning = errors.New("job already running")

// EventKind names the mutation an Event reports.
type EventKind string

const (
	EventAdded         EventKind = "added"
	EventRemoved       EventKind = "removed"
	EventUpdated       EventKind = "updated"
	EventCleared       EventKind = "cleared"
	EventJobRegistered EventKind = "job-registered"
	EventJobCleared    EventKind = "job-cleared"
)

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	// Version increases by one on every published mutation.
	Version       uint64
	Notifications []Notification
	ActiveJobs    map[string]ActiveJob
}

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind           EventKind
	NotificationID ID
	JobType        string
	Snapshot       Snapshot
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDefaultDuration sets the auto-dismiss delay used by Add.
func WithDefaultDuration(d time.Duration) StoreOption {
	return func(s *Store) { s.defaultDuration = d }
}

// WithErrorDuration sets the auto-dismiss delay used by ShowError.
func WithErrorDuration(d time.Duration) StoreOption {
	return func(s *Store) { s.errorDuration = d }
}

// WithResolvedDuration sets how long a resolved job notification stays visible.
func WithResolvedDuration(d time.Duration) StoreOption {
	return func(s *Store) { s.resolvedDuration = d }
}

// WithLogger attaches a logger for debug traces.
func WithLogger(l logging.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

type scheduled struct {
	timer Timer
	gen   uint64
}

// Store keeps the ordered notification sequence and the jobType -> ActiveJob map.
// All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	clock  Clock
	logger logging.Logger

	defaultDuration  time.Duration
	errorDuration    time.Duration
	resolvedDuration time.Duration

	lastID        ID
	version       uint64
	timerGen      uint64
	notifications []Notification
	timers        map[ID]scheduled
	jobs          map[string]ActiveJob

	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:            RealClock(),
		logger:           logging.Nop(),
		defaultDuration:  DefaultDuration,
		errorDuration:    DefaultErrorDuration,
		resolvedDuration: DefaultResolvedDuration,
		timers:           make(map[ID]scheduled),
		jobs:             make(map[string]ActiveJob),
		subs:             make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a notification and returns its id. Non-persistent notifications
// with a positive duration are removed automatically once it elapses.
func (s *Store) Add(message string, severity Severity, opts ...Option) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.addLocked(message, severity, opts)
	s.publishLocked(Event{Kind: EventAdded, NotificationID: n.ID, JobType: n.JobType})
	return n.ID
}

func (s *Store) addLocked(message string, severity Severity, opts []Option) Notification {
	if !severity.IsValid() {
		s.logger.Debug("unknown severity, using info", "severity", string(severity))
		severity = SeverityInfo
	}
	s.lastID++
	n := Notification{
		ID:        s.lastID,
		Message:   message,
		Severity:  severity,
		Timestamp: s.clock.Now(),
		Duration:  s.defaultDuration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&n)
		}
	}
	s.notifications = append(s.notifications, n)
	if n.AutoDismisses() {
		s.scheduleLocked(n.ID, n.Duration)
	}
	s.logger.Debug("notification added", "id", uint64(n.ID), "severity", string(n.Severity), "persistent", n.Persistent)
	return n
}

// Remove deletes the notification with id. Unknown ids are ignored.
// The ActiveJob map is not touched.
func (s *Store) Remove(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.removeLocked(id); ok {
		s.publishLocked(Event{Kind: EventRemoved, NotificationID: id, JobType: n.JobType})
	}
}

func (s *Store) removeLocked(id ID) (Notification, bool) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return Notification{}, false
	}
	n := s.notifications[idx]
	s.notifications = append(s.notifications[:idx], s.notifications[idx+1:]...)
	s.cancelTimerLocked(id)
	return n, true
}

// ClearAll empties the notification sequence. Active jobs stay registered.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.notifications = nil
	s.publishLocked(Event{Kind: EventCleared})
}

// ShowSuccess adds a success notification.
func (s *Store) ShowSuccess(message string, opts ...Option) ID {
	return s.Add(message, SeveritySuccess, opts...)
}

// ShowError adds an error notification that stays longer than the default
// unless a duration option overrides it.
func (s *Store) ShowError(message string, opts ...Option) ID {
	s.mu.Lock()
	d := s.errorDuration
	s.mu.Unlock()
	return s.Add(message, SeverityError, append([]Option{WithDuration(d)}, opts...)...)
}

// ShowWarning adds a warning notification.
func (s *Store) ShowWarning(message string, opts ...Option) ID {
	return s.Add(message, SeverityWarning, opts...)
}

// ShowInfo adds an info notification.
func (s *Store) ShowInfo(message string, opts ...Option) ID {
	return s.Add(message, SeverityInfo, opts...)
}

// ShowJobProgress adds a persistent notification for a job and, when jobType is
// set, registers it as the active job of that type. An existing entry for the
// type is overwritten; use ClaimJob to refuse instead.
func (s *Store) ShowJobProgress(message, jobID, jobType string) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerJobLocked(message, jobID, jobType)
}

// ClaimJob behaves like ShowJobProgress but fails with ErrJobRunning when the
// type already has an active job. The check and the registration are atomic.
func (s *Store) ClaimJob(message, jobID, jobType string) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobType != "" {
		if existing, ok := s.jobs[jobType]; ok {
			return 0, fmt.Errorf("%w: %s (job %s)", ErrJobRunning, jobType, existing.JobID)
		}
	}
	return s.registerJobLocked(message, jobID, jobType), nil
}

func (s *Store) registerJobLocked(message, jobID, jobType string) ID {
	n := s.addLocked(message, SeverityInfo, []Option{Persistent(), WithJob(jobID, jobType)})
	if jobType == "" {
		s.publishLocked(Event{Kind: EventAdded, NotificationID: n.ID})
		return n.ID
	}
	if prev, ok := s.jobs[jobType]; ok {
		s.logger.Debug("active job replaced", "job_type", jobType, "previous_job", prev.JobID, "job", jobID)
	}
	s.jobs[jobType] = ActiveJob{JobID: jobID, NotificationID: n.ID, StartTime: n.Timestamp}
	s.publishLocked(Event{Kind: EventJobRegistered, NotificationID: n.ID, JobType: jobType})
	return n.ID
}

// UpdateJobStatus rewrites a job notification with its final message and
// severity, makes it auto-dismiss after the resolved duration, and drops the
// ActiveJob entry for jobType. The map entry is dropped even when the
// notification id is unknown.
func (s *Store) UpdateJobStatus(notificationID ID, message string, severity Severity, jobType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveLocked(notificationID, message, severity, jobType)
}

// ResolveJob is UpdateJobStatus guarded against stale callers: it applies only
// while jobID is still the job tracked for jobType (or, for untyped jobs, while
// the notification still belongs to jobID and is unresolved). It reports
// whether the update was applied.
func (s *Store) ResolveJob(jobID, jobType string, notificationID ID, message string, severity Severity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(jobID, jobType, notificationID) {
		s.logger.Debug("stale job resolution discarded", "job", jobID, "job_type", jobType)
		return false
	}
	s.resolveLocked(notificationID, message, severity, jobType)
	return true
}

// ReportProgress rewrites the message of a running job notification under the
// same staleness guard as ResolveJob. The notification stays persistent.
func (s *Store) ReportProgress(jobID, jobType string, notificationID ID, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(jobID, jobType, notificationID) {
		return false
	}
	idx := s.indexLocked(notificationID)
	if idx < 0 {
		return false
	}
	if s.notifications[idx].Message != message {
		s.notifications[idx].Message = message
		s.publishLocked(Event{Kind: EventUpdated, NotificationID: notificationID, JobType: jobType})
	}
	return true
}

// Tracks reports whether jobID is still the job tracked for jobType and
// notificationID, using the same rule as ResolveJob.
func (s *Store) Tracks(jobID, jobType string, notificationID ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownsLocked(jobID, jobType, notificationID)
}

func (s *Store) ownsLocked(jobID, jobType string, notificationID ID) bool {
	if jobType != "" {
		active, ok := s.jobs[jobType]
		return ok && active.JobID == jobID && active.NotificationID == notificationID
	}
	idx := s.indexLocked(notificationID)
	if idx < 0 {
		return false
	}
	n := s.notifications[idx]
	return n.JobID == jobID && n.Persistent
}

func (s *Store) resolveLocked(id ID, message string, severity Severity, jobType string) {
	if !severity.IsValid() {
		severity = SeverityInfo
	}
	jobCleared := false
	if jobType != "" {
		if _, ok := s.jobs[jobType]; ok {
			delete(s.jobs, jobType)
			jobCleared = true
		}
	}

	idx := s.indexLocked(id)
	if idx < 0 {
		if jobCleared {
			s.publishLocked(Event{Kind: EventJobCleared, JobType: jobType})
		}
		return
	}
	n := &s.notifications[idx]
	n.Message = message
	n.Severity = severity
	n.Persistent = false
	n.Duration = s.resolvedDuration
	// Removal is scheduled here rather than derived from the new Duration.
	if s.resolvedDuration > 0 {
		s.scheduleLocked(id, s.resolvedDuration)
	} else {
		s.cancelTimerLocked(id)
	}
	s.publishLocked(Event{Kind: EventUpdated, NotificationID: id, JobType: jobType})
}

// IsJobRunning reports whether jobType has an active job.
func (s *Store) IsJobRunning(jobType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobType]
	return ok
}

// GetActiveJob returns the active job of jobType.
func (s *Store) GetActiveJob(jobType string) (ActiveJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobType]
	return j, ok
}

// ActiveJobs returns a copy of the ActiveJob map.
func (s *Store) ActiveJobs() map[string]ActiveJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyJobsLocked()
}

// Notifications returns a copy of the notification sequence in insertion order.
func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyNotificationsLocked()
}

// Get returns the notification with id.
func (s *Store) Get(id ID) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Notification{}, false
	}
	return s.notifications[idx], true
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ClearJob stops tracking the active job of jobType and removes its
// notification. Server-side execution is not affected.
func (s *Store) ClearJob(jobType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.jobs[jobType]
	if !ok {
		return
	}
	delete(s.jobs, jobType)
	s.removeLocked(active.NotificationID)
	s.publishLocked(Event{Kind: EventJobCleared, NotificationID: active.NotificationID, JobType: jobType})
}

// Activate runs the action attached to id and removes the notification unless
// it is persistent. It reports whether an action ran.
func (s *Store) Activate(id ID) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || s.notifications[idx].Action == nil {
		s.mu.Unlock()
		return false
	}
	n := s.notifications[idx]
	if !n.Persistent {
		s.removeLocked(id)
		s.publishLocked(Event{Kind: EventRemoved, NotificationID: id, JobType: n.JobType})
	}
	s.mu.Unlock()

	if n.Action.OnActivate != nil {
		n.Action.OnActivate()
	}
	return true
}

// Dismiss is the close affordance: it removes the notification and stops
// tracking any active job it represents.
func (s *Store) Dismiss(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.removeLocked(id)
	if !ok {
		return
	}
	jobType := ""
	for t, active := range s.jobs {
		if active.NotificationID == id {
			delete(s.jobs, t)
			jobType = t
		}
	}
	if jobType == "" {
		jobType = n.JobType
	}
	s.publishLocked(Event{Kind: EventRemoved, NotificationID: id, JobType: jobType})
}

// Subscribe registers an observer. Events arrive in mutation order; when the
// buffer is full the oldest pending event is dropped. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[key]; ok {
				delete(s.subs, key)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Close stops every pending timer and closes subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
}

func (s *Store) scheduleLocked(id ID, d time.Duration) {
	s.cancelTimerLocked(id)
	if s.closed {
		return
	}
	s.timerGen++
	gen := s.timerGen
	t := s.clock.AfterFunc(d, func() { s.expire(id, gen) })
	s.timers[id] = scheduled{timer: t, gen: gen}
}

func (s *Store) cancelTimerLocked(id ID) {
	if sc, ok := s.timers[id]; ok {
		sc.timer.Stop()
		delete(s.timers, id)
	}
}

// expire runs on the clock's goroutine. A callback that was already queued
// when its timer got replaced or cancelled finds a different generation and
// does nothing.
func (s *Store) expire(id ID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.timers[id]
	if !ok || sc.gen != gen {
		return
	}
	delete(s.timers, id)
	if n, ok := s.removeLocked(id); ok {
		s.logger.Debug("notification expired", "id", uint64(id))
		s.publishLocked(Event{Kind: EventRemoved, NotificationID: id, JobType: n.JobType})
	}
}

func (s *Store) indexLocked(id ID) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) copyNotificationsLocked() []Notification {
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Store) copyJobsLocked() map[string]ActiveJob {
	out := make(map[string]ActiveJob, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:       s.version,
		Notifications: s.copyNotificationsLocked(),
		ActiveJobs:    s.copyJobsLocked(),
	}
}

func (s *Store) publishLocked(ev Event) {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	ev.Snapshot = s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
