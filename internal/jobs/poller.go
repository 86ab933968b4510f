package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/wb-go/wbf/retry"
)

// Default polling cadence.
const (
	DefaultInterval     = 4000 * time.Millisecond
	DefaultInitialDelay = 2000 * time.Millisecond
)

// DefaultRetry retries a failing status request twice before giving up.
var DefaultRetry = retry.Strategy{Attempts: 3, Delay: time.Second, Backoff: 2}

// Result is the way a poll loop ended.
type Result string

const (
	ResultFinished  Result = "finished"
	ResultFailed    Result = "failed"
	ResultExpired   Result = "expired"
	ResultLost      Result = "lost"
	ResultStale     Result = "stale"
	ResultCancelled Result = "cancelled"
	ResultTimeout   Result = "timeout"
)

// Resolved reports whether the loop drove the notification to a final state.
func (r Result) Resolved() bool {
	switch r {
	case ResultFinished, ResultFailed, ResultExpired, ResultLost, ResultTimeout:
		return true
	default:
		return false
	}
}

// StatusSource fetches the status of a job.
type StatusSource interface {
	GetJobStatus(ctx context.Context, jobID string) (Status, error)
}

// StatusSourceFunc adapts a function to StatusSource.
type StatusSourceFunc func(ctx context.Context, jobID string) (Status, error)

// GetJobStatus calls f.
func (f StatusSourceFunc) GetJobStatus(ctx context.Context, jobID string) (Status, error) {
	return f(ctx, jobID)
}

// Tracker is the part of the notification store the poller writes to. Every
// write is guarded so results for superseded jobs are dropped.
type Tracker interface {
	Tracks(jobID, jobType string, notificationID notification.ID) bool
	ReportProgress(jobID, jobType string, notificationID notification.ID, message string) bool
	ResolveJob(jobID, jobType string, notificationID notification.ID, message string, severity notification.Severity) bool
}

// Recorder receives poll metrics.
type Recorder interface {
	PollStarted(jobType string)
	PollFailed(jobType string)
	JobResolved(jobType string, result Result, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) PollStarted(string)                        {}
func (nopRecorder) PollFailed(string)                         {}
func (nopRecorder) JobResolved(string, Result, time.Duration) {}

// Job identifies the job a poller follows.
type Job struct {
	ID             string
	Type           string
	NotificationID notification.ID
	// Label is the human name used in messages, e.g. "Bank sync".
	Label string
}

// Options configures a Poller. Zero values fall back to the defaults.
type Options struct {
	Interval time.Duration
	// InitialDelay schedules one early poll; zero polls right away.
	InitialDelay time.Duration
	// MaxDuration stops tracking after the given time; zero polls forever.
	MaxDuration time.Duration
	Retry       retry.Strategy
	Summarizer  Summarizer
	ErrorFormat ErrorFormat
	// OnFinished runs after a successful resolution, e.g. to refetch data.
	OnFinished func(ctx context.Context, status Status)
	Logger     logging.Logger
	Recorder   Recorder
	// TickChan replaces both the interval ticker and the initial delay timer (testing).
	TickChan <-chan time.Time
	// Now is used for elapsed times (testing).
	Now func() time.Time
}

// Outcome describes how a poll loop ended.
type Outcome struct {
	Job     Job
	Result  Result
	Message string
	Polls   int
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Poller drives one job's notification to a terminal state.
type Poller struct {
	job     Job
	source  StatusSource
	tracker Tracker
	opts    Options

	lastProgress string
}

// NewPoller creates a poller for job. It panics if source or tracker is nil.
func NewPoller(job Job, source StatusSource, tracker Tracker, opts Options) *Poller {
	if source == nil {
		panic("NewPoller: status source cannot be nil")
	}
	if tracker == nil {
		panic("NewPoller: tracker cannot be nil")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if job.Label == "" {
		job.Label = "Job"
	}
	return &Poller{job: job, source: source, tracker: tracker, opts: opts}
}

// Run polls until the job reaches a terminal state, the job is superseded, or
// ctx is cancelled. Cancelling only stops client-side tracking.
func (p *Poller) Run(ctx context.Context) Outcome {
	start := p.opts.Now()
	log := p.opts.Logger.With("job", p.job.ID, "job_type", p.job.Type)
	log.Debug("poller started", "interval", p.opts.Interval.String())

	ticks := p.opts.TickChan
	var early <-chan time.Time
	if ticks == nil {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		ticks = ticker.C
		if p.opts.InitialDelay < p.opts.Interval {
			timer := time.NewTimer(p.opts.InitialDelay)
			defer timer.Stop()
			early = timer.C
		}
	}
	var deadline <-chan time.Time
	if p.opts.MaxDuration > 0 {
		timer := time.NewTimer(p.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	out := Outcome{Job: p.job}
	finish := func(o Outcome) Outcome {
		o.Elapsed = p.opts.Now().Sub(start)
		if o.Result.Resolved() {
			p.opts.Recorder.JobResolved(p.job.Type, o.Result, o.Elapsed)
		}
		log.Debug("poller stopped", "result", string(o.Result), "polls", o.Polls)
		return o
	}

	for {
		select {
		case <-ctx.Done():
			out.Result = ResultCancelled
			out.Err = ctx.Err()
			return finish(out)
		case <-deadline:
			msg := TimeoutMessage(p.job.Label)
			if !p.resolve(msg, notification.SeverityWarning) {
				out.Result = ResultStale
				return finish(out)
			}
			out.Result = ResultTimeout
			out.Message = msg
			return finish(out)
		case <-early:
			early = nil
		case _, ok := <-ticks:
			if !ok {
				out.Result = ResultCancelled
				return finish(out)
			}
		}

		done := p.poll(ctx, &out)
		if done {
			return finish(out)
		}
	}
}

// poll runs one status check and applies it. It reports whether the loop ends.
func (p *Poller) poll(ctx context.Context, out *Outcome) bool {
	if !p.tracker.Tracks(p.job.ID, p.job.Type, p.job.NotificationID) {
		out.Result = ResultStale
		return true
	}

	out.Polls++
	status, err := p.fetch(ctx)
	if ctx.Err() != nil {
		out.Result = ResultCancelled
		out.Err = ctx.Err()
		return true
	}

	switch {
	case errors.Is(err, ErrJobNotFound):
		return p.terminate(out, ResultExpired, ExpiredMessage(p.job.Label), notification.SeverityWarning, err)
	case err != nil:
		return p.terminate(out, ResultLost, LostMessage(p.job.Label, err), notification.SeverityError, err)
	}

	out.Status = status
	switch Classify(status) {
	case PhaseFinished:
		p.terminate(out, ResultFinished, p.summary(status), notification.SeveritySuccess, nil)
		if out.Result == ResultFinished && p.opts.OnFinished != nil {
			p.opts.OnFinished(ctx, status)
		}
		return true
	case PhaseFailed:
		return p.terminate(out, ResultFailed, FailureMessage(status, p.opts.ErrorFormat), notification.SeverityError, nil)
	}

	if status.Stage() != "" {
		msg := StageMessage(p.job.Label, status.Meta)
		if msg != p.lastProgress {
			if !p.tracker.ReportProgress(p.job.ID, p.job.Type, p.job.NotificationID, msg) {
				out.Result = ResultStale
				return true
			}
			p.lastProgress = msg
		}
	}
	return false
}

// terminate resolves the notification; a rejected resolution means the job
// was superseded, which ends the loop as stale.
func (p *Poller) terminate(out *Outcome, result Result, msg string, severity notification.Severity, err error) bool {
	if !p.resolve(msg, severity) {
		out.Result = ResultStale
		return true
	}
	out.Result = result
	out.Message = msg
	out.Err = err
	return true
}

func (p *Poller) resolve(msg string, severity notification.Severity) bool {
	return p.tracker.ResolveJob(p.job.ID, p.job.Type, p.job.NotificationID, msg, severity)
}

func (p *Poller) summary(status Status) string {
	if p.opts.Summarizer != nil {
		if msg := p.opts.Summarizer.Summarize(status.Result); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%s completed", p.job.Label)
}

// fetch gets the status with retries. A missing job is not retried.
// retry.Do sleeps after every failed attempt and ignores ctx, so the last
// attempt reports through res and the wait runs beside a ctx select.
func (p *Poller) fetch(ctx context.Context) (Status, error) {
	type result struct {
		status Status
		err    error
	}
	p.opts.Recorder.PollStarted(p.job.Type)

	done := make(chan result, 1)
	go func() {
		var (
			res     result
			attempt int
		)
		_ = retry.Do(func() error {
			if ctx.Err() != nil {
				res = result{err: ctx.Err()}
				return nil
			}
			attempt++
			s, err := p.source.GetJobStatus(ctx, p.job.ID)
			switch {
			case errors.Is(err, ErrJobNotFound):
				res = result{err: err}
				return nil
			case err != nil:
				p.opts.Recorder.PollFailed(p.job.Type)
				p.opts.Logger.Warn("job status request failed", "job", p.job.ID, "attempt", attempt, "error", err.Error())
				res = result{err: err}
				if attempt >= p.opts.Retry.Attempts {
					return nil
				}
				return err
			}
			res = result{status: s}
			return nil
		}, p.opts.Retry)
		done <- res
	}()

	select {
	case res := <-done:
		return res.status, res.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
