package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cristianoliveira/job-intray/internal/api"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/jobtype"
	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/notification"
)

var (
	// ErrInvalidRequest is returned when a start request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAlreadyRunning is returned when a job of the same type is active.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNoActiveJob is returned by Resume when nothing is registered for a type.
	ErrNoActiveJob = errors.New("no active job")
)

// DefaultRefetchTimeout bounds each refetch after a successful job.
const DefaultRefetchTimeout = 10 * time.Second

// Observer is told about every tracked job.
type Observer interface {
	JobStarted(job jobs.Job)
	JobEnded(outcome jobs.Outcome)
}

// Handle follows one tracked job.
type Handle struct {
	Job jobs.Job

	done    chan struct{}
	outcome jobs.Outcome
	cancel  context.CancelFunc
}

// Wait blocks until the poller stops and returns how it ended.
func (h *Handle) Wait() jobs.Outcome {
	<-h.done
	return h.outcome
}

// Done is closed when the poller stops.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops client-side tracking. The server-side job is unaffected.
func (h *Handle) Cancel() {
	h.cancel()
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPollOptions sets the poller template. Summarizer, ErrorFormat and
// OnFinished are always taken from the kind.
func WithPollOptions(opts jobs.Options) RunnerOption {
	return func(r *Runner) { r.pollOpts = opts }
}

// WithObserver adds an observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRefetchTimeout bounds each post-success refetch.
func WithRefetchTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.refetchTimeout = d
		}
	}
}

// Runner starts jobs, registers them in the store and runs their pollers.
type Runner struct {
	store          *notification.Store
	backend        Backend
	pollOpts       jobs.Options
	observers      []Observer
	logger         logging.Logger
	refetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRunner creates a runner. It panics if store or backend is nil.
func NewRunner(store *notification.Store, backend Backend, opts ...RunnerOption) *Runner {
	if store == nil {
		panic("NewRunner: store cannot be nil")
	}
	if backend == nil {
		panic("NewRunner: backend cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:          store,
		backend:        backend,
		logger:         logging.Nop(),
		refetchTimeout: DefaultRefetchTimeout,
		ctx:            ctx,
		cancel:         cancel,
		handles:        make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates req, starts the backend job, claims its job type in the
// store and begins polling. Every failure leaves a notification behind.
func (r *Runner) Start(ctx context.Context, kind Kind, req Request) (*Handle, error) {
	if err := kind.Validate(req); err != nil {
		r.store.ShowError(userMessage(err))
		return nil, err
	}

	jobType := kind.JobType(req)
	label := kind.Label(req)
	if r.store.IsJobRunning(jobType) {
		r.store.ShowWarning(fmt.Sprintf("%s is already running", label))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobType)
	}

	jobID, err := kind.Start(ctx, r.backend, req)
	if err != nil {
		r.store.ShowError(fmt.Sprintf("Failed to start %s: %s", strings.ToLower(label), userMessage(err)))
		r.logger.Error("job start failed", "job_type", jobType, "error", err.Error())
		return nil, fmt.Errorf("starting %s: %w", jobType, err)
	}

	nid, err := r.store.ClaimJob(jobs.StageMessage(label, nil), jobID, jobType)
	if err != nil {
		// Lost a race with another start of the same type.
		r.store.ShowWarning(fmt.Sprintf("%s is already running", label))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobType)
	}
	r.logger.Info("job started", "job", jobID, "job_type", jobType)

	return r.track(kind, jobs.Job{ID: jobID, Type: jobType, NotificationID: nid, Label: label}), nil
}

// Resume attaches a poller to the job registered for jobType. A job already
// followed by this runner returns its existing handle.
func (r *Runner) Resume(jobType string) (*Handle, error) {
	active, ok := r.store.GetActiveJob(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveJob, jobType)
	}
	kind, err := KindForType(jobType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	h, ok := r.handles[jobType]
	r.mu.Unlock()
	if ok && h.Job.ID == active.JobID {
		select {
		case <-h.done:
		default:
			return h, nil
		}
	}

	job := jobs.Job{ID: active.JobID, Type: jobType, NotificationID: active.NotificationID, Label: jobtype.Label(jobType)}
	r.logger.Info("job resumed", "job", active.JobID, "job_type", jobType)
	return r.track(kind, job), nil
}

// Adopt registers a job started elsewhere (for example by an earlier run) and
// follows it.
func (r *Runner) Adopt(jobType, jobID string) (*Handle, error) {
	kind, err := KindForType(jobType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrInvalidRequest)
	}
	label := jobtype.Label(jobType)
	nid, err := r.store.ClaimJob(jobs.StageMessage(label, nil), jobID, jobType)
	if err != nil {
		r.store.ShowWarning(fmt.Sprintf("%s is already running", label))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobType)
	}
	return r.track(kind, jobs.Job{ID: jobID, Type: jobType, NotificationID: nid, Label: label}), nil
}

// Discard stops following jobType and drops its store registration. The
// server-side job keeps running.
func (r *Runner) Discard(jobType string) {
	r.mu.Lock()
	h, ok := r.handles[jobType]
	delete(r.handles, jobType)
	r.mu.Unlock()
	if ok {
		h.Cancel()
	}
	r.store.ClearJob(jobType)
}

// Shutdown cancels every poller and waits for them and their observers.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) track(kind Kind, job jobs.Job) *Handle {
	ctx, cancel := context.WithCancel(r.ctx)
	h := &Handle{Job: job, done: make(chan struct{}), cancel: cancel}

	opts := r.pollOpts
	opts.Summarizer = kind.Summarizer
	opts.ErrorFormat = kind.ErrorFormat
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	refetch := kind.Refetch
	opts.OnFinished = func(ctx context.Context, _ jobs.Status) {
		r.refetch(ctx, job, refetch)
	}
	poller := jobs.NewPoller(job, r.backend, r.store, opts)

	r.mu.Lock()
	if prev, ok := r.handles[job.Type]; ok && prev != h {
		prev.Cancel()
	}
	r.handles[job.Type] = h
	r.mu.Unlock()

	for _, o := range r.observers {
		o.JobStarted(job)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		out := poller.Run(ctx)
		for _, o := range r.observers {
			o.JobEnded(out)
		}

		r.mu.Lock()
		if r.handles[job.Type] == h {
			delete(r.handles, job.Type)
		}
		r.mu.Unlock()

		h.outcome = out
		close(h.done)
	}()
	return h
}

func (r *Runner) refetch(ctx context.Context, job jobs.Job, resources []string) {
	for _, res := range resources {
		rctx, cancel := context.WithTimeout(ctx, r.refetchTimeout)
		n, err := r.backend.Refresh(rctx, res)
		cancel()
		if err != nil {
			r.logger.Warn("refetch failed", "job", job.ID, "resource", res, "error", err.Error())
			continue
		}
		r.logger.Debug("refetched", "job", job.ID, "resource", res, "items", n)
	}
}

// userMessage strips wrapping so notifications show the cause.
func userMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrInvalidRequest) {
		msg := strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error()+": ")
		if msg == "" {
			return "Invalid request"
		}
		return strings.ToUpper(msg[:1]) + msg[1:]
	}
	return err.Error()
}
