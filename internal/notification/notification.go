// Package notification holds the in-memory notification store: transient UI
// notifications plus the single-slot registry of active background jobs.
package notification

import (
	"time"
)

// ID identifies a notification. IDs increase monotonically and are never reused
// within one Store.
type ID uint64

// Severity is the display severity of a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IsValid checks if the severity is one of the known values.
func (s Severity) IsValid() bool {
	switch s {
	case SeveritySuccess, SeverityError, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// Action is an optional button rendered next to a notification.
type Action struct {
	Label      string
	OnActivate func()
}

// Notification is a single entry of the notification sequence.
type Notification struct {
	ID        ID
	Message   string
	Severity  Severity
	Timestamp time.Time
	// Duration before auto-dismissal; zero means no auto-dismiss.
	Duration time.Duration
	// Persistent notifications ignore Duration until a status update clears the flag.
	Persistent bool
	Action     *Action
	JobID      string
	JobType    string
}

// AutoDismisses reports whether the notification is scheduled to disappear on its own.
func (n Notification) AutoDismisses() bool {
	return !n.Persistent && n.Duration > 0
}

// IsJob reports whether the notification represents a background job.
func (n Notification) IsJob() bool {
	return n.JobID != ""
}

// ActiveJob is the client-side tracking record of a running background job.
type ActiveJob struct {
	JobID          string
	NotificationID ID
	StartTime      time.Time
}

// Elapsed returns the running time of the job as of now.
func (j ActiveJob) Elapsed(now time.Time) time.Duration {
	if now.Before(j.StartTime) {
		return 0
	}
	return now.Sub(j.StartTime)
}

// Option customizes a notification created by Add and the Show* helpers.
type Option func(*Notification)

// WithDuration sets the auto-dismiss delay. Zero disables auto-dismissal.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) {
		if d < 0 {
			d = 0
		}
		n.Duration = d
	}
}

// Persistent keeps the notification until it is removed or resolved.
func Persistent() Option {
	return func(n *Notification) {
		n.Persistent = true
	}
}

// WithAction attaches a button to the notification.
func WithAction(label string, onActivate func()) Option {
	return func(n *Notification) {
		n.Action = &Action{Label: label, OnActivate: onActivate}
	}
}

// WithJob correlates the notification with a background job.
func WithJob(jobID, jobType string) Option {
	return func(n *Notification) {
		n.JobID = jobID
		n.JobType = jobType
	}
}
