package consumer

import (
	"context"
	"time"

	"github.com/cristianoliveira/job-intray/internal/hooks"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/journal"
	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

// HookPoint maps a resolved result to its hook point.
func HookPoint(result jobs.Result) (string, bool) {
	switch result {
	case jobs.ResultFinished:
		return hooks.JobFinished, true
	case jobs.ResultFailed:
		return hooks.JobFailed, true
	case jobs.ResultExpired:
		return hooks.JobExpired, true
	case jobs.ResultLost:
		return hooks.JobLost, true
	case jobs.ResultTimeout:
		return hooks.JobTimeout, true
	default:
		return "", false
	}
}

// HookObserver runs user hook scripts on job lifecycle events.
type HookObserver struct {
	// Run defaults to hooks.Run.
	Run    func(hookPoint string, envVars ...string) error
	Logger logging.Logger
}

func (o HookObserver) run(point string, env []string) {
	run := o.Run
	if run == nil {
		run = hooks.Run
	}
	if err := run(point, env...); err != nil && o.Logger != nil {
		o.Logger.Warn("hook aborted", "hook_point", point, "error", err.Error())
	}
}

// JobStarted runs the job-started hooks.
func (o HookObserver) JobStarted(job jobs.Job) {
	o.run(hooks.JobStarted, hooks.JobEnv(job.ID, job.Type, "started", job.Label))
}

// JobEnded runs the hooks of the outcome. Stale and cancelled loops run none.
func (o HookObserver) JobEnded(out jobs.Outcome) {
	point, ok := HookPoint(out.Result)
	if !ok {
		return
	}
	o.run(point, hooks.JobEnv(out.Job.ID, out.Job.Type, string(out.Result), out.Message))
}

// OutcomeRecorder persists outcomes; journal.Journal implements it.
type OutcomeRecorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// JournalObserver writes resolved outcomes to the journal.
type JournalObserver struct {
	Journal OutcomeRecorder
	Logger  logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// JobStarted is a no-op; only outcomes are journaled.
func (o JournalObserver) JobStarted(jobs.Job) {}

// JobEnded records resolved outcomes.
func (o JournalObserver) JobEnded(out jobs.Outcome) {
	if !out.Result.Resolved() || o.Journal == nil {
		return
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	finished := now()
	_, err := o.Journal.Record(context.Background(), journal.Entry{
		JobID:      out.Job.ID,
		JobType:    out.Job.Type,
		Outcome:    string(out.Result),
		Message:    out.Message,
		Polls:      out.Polls,
		StartedAt:  finished.Add(-out.Elapsed),
		FinishedAt: finished,
	})
	if err != nil && o.Logger != nil {
		o.Logger.Warn("journal write failed", "job", out.Job.ID, "error", err.Error())
	}
}

// ActiveJobsGauge receives the number of registered jobs.
type ActiveJobsGauge interface {
	SetActiveJobs(n int)
}

// GaugeObserver keeps an active-jobs gauge in line with the store.
type GaugeObserver struct {
	Store *notification.Store
	Gauge ActiveJobsGauge
}

// JobStarted updates the gauge.
func (o GaugeObserver) JobStarted(jobs.Job) { o.update() }

// JobEnded updates the gauge.
func (o GaugeObserver) JobEnded(jobs.Outcome) { o.update() }

func (o GaugeObserver) update() {
	if o.Store == nil || o.Gauge == nil {
		return
	}
	o.Gauge.SetActiveJobs(len(o.Store.ActiveJobs()))
}
