package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cristianoliveira/job-intray/internal/api"
	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/config"
	"github.com/cristianoliveira/job-intray/internal/consumer"
	"github.com/cristianoliveira/job-intray/internal/credential"
	"github.com/cristianoliveira/job-intray/internal/hooks"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/journal"
	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/metrics"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/cristianoliveira/job-intray/internal/version"
	"github.com/wb-go/wbf/retry"
)

// app wires the store, the API client and the runner from configuration. It
// is built on first use so commands like version and login stay cheap.
type app struct {
	once   sync.Once
	err    error
	closed bool

	logger  logging.Logger
	client  *api.Client
	store   *notification.Store
	runner  *consumer.Runner
	journal *journal.Journal
	metrics *metrics.Metrics
}

var defaultApp = &app{}

func (a *app) init() error {
	a.once.Do(func() { a.err = a.setup() })
	return a.err
}

func (a *app) setup() error {
	config.Load()
	colors.SetDebug(config.GetBool("debug", false))
	colors.SetQuiet(config.GetBool("quiet", false))

	if err := logging.InitGlobal(); err != nil {
		colors.Warning(fmt.Sprintf("file logging disabled: %v", err))
	}
	a.logger = logging.GetGlobal()

	token, err := credential.Token()
	if err != nil {
		a.logger.Warn("reading api token", "error", err.Error())
	}
	a.client = api.New(config.Get("api_base_url", "http://localhost:8000"),
		api.WithToken(token),
		api.WithTimeout(config.GetMillis("api_timeout_ms", api.DefaultTimeout)),
		api.WithLogger(a.logger.With("component", "api")),
	)

	a.store = notification.NewStore(
		notification.WithDefaultDuration(config.GetMillis("notification_duration_ms", notification.DefaultDuration)),
		notification.WithErrorDuration(config.GetMillis("error_duration_ms", notification.DefaultErrorDuration)),
		notification.WithResolvedDuration(config.GetMillis("resolved_duration_ms", notification.DefaultResolvedDuration)),
		notification.WithLogger(a.logger.With("component", "store")),
	)
	a.metrics = metrics.New()

	opts := []consumer.RunnerOption{
		consumer.WithPollOptions(jobs.Options{
			Interval:     config.GetMillis("poll_interval_ms", jobs.DefaultInterval),
			InitialDelay: config.GetMillis("poll_initial_delay_ms", jobs.DefaultInitialDelay),
			MaxDuration:  config.GetMillis("poll_max_duration_ms", 0),
			Retry: retry.Strategy{
				Attempts: config.GetInt("poll_retry_attempts", jobs.DefaultRetry.Attempts),
				Delay:    config.GetMillis("poll_retry_delay_ms", jobs.DefaultRetry.Delay),
				Backoff:  config.GetFloat("poll_retry_backoff", jobs.DefaultRetry.Backoff),
			},
			Logger:   a.logger.With("component", "poller"),
			Recorder: a.metrics,
		}),
		consumer.WithRunnerLogger(a.logger.With("component", "runner")),
		consumer.WithObserver(consumer.GaugeObserver{Store: a.store, Gauge: a.metrics}),
	}

	if config.GetBool("hooks_enabled", true) {
		if err := hooks.Init(); err != nil {
			a.logger.Warn("hooks disabled", "error", err.Error())
		} else {
			opts = append(opts, consumer.WithObserver(consumer.HookObserver{Logger: a.logger}))
		}
	}

	if config.GetBool("journal_enabled", true) {
		j, err := journal.Open(config.Get("journal_path", ""))
		if err != nil {
			colors.Warning(fmt.Sprintf("job history disabled: %v", err))
		} else {
			a.journal = j
			a.pruneJournal()
			opts = append(opts, consumer.WithObserver(consumer.JournalObserver{Journal: j, Logger: a.logger}))
		}
	}

	a.runner = consumer.NewRunner(a.store, a.client, opts...)
	a.logger.Debug("app ready", "api", a.client.BaseURL())
	return nil
}

func (a *app) pruneJournal() {
	days := config.GetInt("journal_retention_days", 90)
	if days <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := a.journal.Prune(context.Background(), cutoff)
	if err != nil {
		a.logger.Warn("pruning job history", "error", err.Error())
		return
	}
	if n > 0 {
		a.logger.Debug("pruned job history", "entries", n)
	}
}

// Store returns the notification store.
func (a *app) Store() (*notification.Store, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return a.store, nil
}

// StartJob starts kind through the runner.
func (a *app) StartJob(ctx context.Context, kind consumer.Kind, req consumer.Request) (*consumer.Handle, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return a.runner.Start(ctx, kind, req)
}

// AdoptJob follows a job started earlier.
func (a *app) AdoptJob(jobType, jobID string) (*consumer.Handle, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return a.runner.Adopt(jobType, jobID)
}

// DiscardJob stops following jobType and drops it from the store.
func (a *app) DiscardJob(jobType string) {
	if err := a.init(); err != nil {
		return
	}
	a.runner.Discard(jobType)
}

// ResumeJobs attaches a poller to every job registered in the store. Jobs the
// runner already follows keep their poller.
func (a *app) ResumeJobs() {
	if err := a.init(); err != nil {
		return
	}
	for jobType := range a.store.ActiveJobs() {
		if _, err := a.runner.Resume(jobType); err != nil {
			a.logger.Warn("resuming job", "job_type", jobType, "error", err.Error())
		}
	}
}

// JobStatus fetches the status of one job.
func (a *app) JobStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	if err := a.init(); err != nil {
		return jobs.Status{}, err
	}
	return a.client.GetJobStatus(ctx, jobID)
}

// History lists journaled outcomes.
func (a *app) History(ctx context.Context, opts journal.ListOptions) ([]journal.Entry, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	if a.journal == nil {
		return nil, fmt.Errorf("job history is disabled (journal_enabled=false)")
	}
	return a.journal.List(ctx, opts)
}

// MetricsHandler serves the Prometheus collectors.
func (a *app) MetricsHandler() (http.Handler, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return a.metrics.Handler(), nil
}

// SaveToken stores the API token in the keyring.
func (a *app) SaveToken(token string) error {
	return credential.Set(credential.TokenKey, token)
}

// DeleteToken removes the API token from the keyring.
func (a *app) DeleteToken() error {
	return credential.Delete(credential.TokenKey)
}

// Version returns the build version.
func (a *app) Version() string {
	return version.String()
}

// Shutdown stops every poller. Server-side jobs keep running.
func (a *app) Shutdown() {
	if a.runner != nil {
		a.runner.Shutdown()
	}
}

// Close releases everything setup acquired. It is safe to call when setup
// never ran.
func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.runner != nil {
		a.runner.Shutdown()
	}
	hooks.Shutdown()
	if a.store != nil {
		a.store.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	logging.ShutdownGlobal()
}
