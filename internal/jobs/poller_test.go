package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

// scriptedSource returns the queued responses in order and repeats the last one.
type scriptedSource struct {
	mu        sync.Mutex
	responses []response
	calls     int
}

type response struct {
	status Status
	err    error
}

func (s *scriptedSource) GetJobStatus(_ context.Context, _ string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return r.status, r.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingRecorder struct {
	mu       sync.Mutex
	polls    int
	failures int
	results  []Result
}

func (r *recordingRecorder) PollStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
}

func (r *recordingRecorder) PollFailed(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingRecorder) JobResolved(_ string, result Result, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

type harness struct {
	store *notification.Store
	ticks chan time.Time
	done  chan Outcome
}

func startPoller(t *testing.T, store *notification.Store, job Job, source StatusSource, opts Options) *harness {
	t.Helper()
	h := &harness{store: store, ticks: make(chan time.Time), done: make(chan Outcome, 1)}
	opts.TickChan = h.ticks
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Strategy{Attempts: 1}
	}
	p := NewPoller(job, source, store, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { h.done <- p.Run(ctx) }()
	return h
}

// tick triggers one poll and reports false once the loop has ended.
func (h *harness) tick(t *testing.T) bool {
	t.Helper()
	select {
	case h.ticks <- time.Now():
		return true
	case out := <-h.done:
		h.done <- out
		return false
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not accept tick")
		return false
	}
}

func (h *harness) wait(t *testing.T) Outcome {
	t.Helper()
	select {
	case out := <-h.done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
		return Outcome{}
	}
}

func newJobStore(t *testing.T) *notification.Store {
	t.Helper()
	s := notification.NewStore(notification.WithClock(notification.NewManualClock(time.Now())))
	t.Cleanup(s.Close)
	return s
}

func syncSummary() Summarizer {
	return FieldSummary{
		Prefix: "Synced",
		Fields: []Field{Count("added", "$.added"), Count("modified", "$.modified"), Count("removed", "$.removed")},
	}
}

func TestPollerFinishedResolvesWithSummary(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing…", "job-42", "plaid-sync")

	source := &scriptedSource{responses: []response{
		{status: Status{Status: "queued"}},
		{status: Status{Status: "finished", Result: json.RawMessage(`{"added":3,"modified":1,"removed":0}`)}},
	}}
	refetched := make(chan Status, 1)
	rec := &recordingRecorder{}
	h := startPoller(t, store, Job{ID: "job-42", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, Options{
		Summarizer: syncSummary(),
		Recorder:   rec,
		OnFinished: func(_ context.Context, s Status) { refetched <- s },
	})

	require.True(t, h.tick(t))
	require.True(t, h.tick(t))
	out := h.wait(t)

	assert.Equal(t, ResultFinished, out.Result)
	assert.Equal(t, 2, out.Polls)
	assert.Equal(t, "Synced: 3 added, 1 modified, 0 removed", out.Message)
	assert.False(t, store.IsJobRunning("plaid-sync"))

	n, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, notification.SeveritySuccess, n.Severity)
	assert.Equal(t, "Synced: 3 added, 1 modified, 0 removed", n.Message)
	assert.False(t, n.Persistent)

	select {
	case s := <-refetched:
		assert.Equal(t, "finished", s.Status)
	default:
		t.Fatal("OnFinished was not called")
	}
	assert.Equal(t, 2, rec.polls)
	assert.Equal(t, []Result{ResultFinished}, rec.results)
}

func TestPollerStageCompletedCountsAsFinished(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Converting", "job-1", "convert-transactions")

	source := &scriptedSource{responses: []response{
		{status: Status{Status: "started", Meta: &Meta{Stage: "completed"}}},
	}}
	h := startPoller(t, store, Job{ID: "job-1", Type: "convert-transactions", NotificationID: id, Label: "Transaction conversion"}, source, Options{})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultFinished, out.Result)
	assert.Equal(t, "Transaction conversion completed", out.Message)
}

func TestPollerFailedUsesLastLine(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Converting", "job-7", "convert-transactions")

	source := &scriptedSource{responses: []response{
		{status: Status{Status: "failed", Error: "line1\nline2\nReal cause"}},
	}}
	h := startPoller(t, store, Job{ID: "job-7", Type: "convert-transactions", NotificationID: id}, source, Options{
		ErrorFormat: LastLine,
	})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultFailed, out.Result)

	n, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, notification.SeverityError, n.Severity)
	assert.Contains(t, n.Message, "Real cause")
	assert.NotContains(t, n.Message, "line1")
	assert.False(t, store.IsJobRunning("convert-transactions"))
}

func TestPollerFailedStageWithoutError(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Deleting", "job-9", "bulk-delete")

	source := &scriptedSource{responses: []response{
		{status: Status{Status: "started", Meta: &Meta{Stage: "failed"}}},
	}}
	h := startPoller(t, store, Job{ID: "job-9", Type: "bulk-delete", NotificationID: id}, source, Options{})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultFailed, out.Result)
	assert.Equal(t, GenericFailureMessage, out.Message)
}

func TestPollerNotFoundExpiresJob(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-gone", "plaid-sync")

	source := &scriptedSource{responses: []response{{err: ErrJobNotFound}}}
	h := startPoller(t, store, Job{ID: "job-gone", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, Options{
		Retry: retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1},
	})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultExpired, out.Result)
	assert.True(t, errors.Is(out.Err, ErrJobNotFound))
	assert.Equal(t, 1, source.Calls(), "a missing job is not retried")

	n, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, notification.SeverityWarning, n.Severity)
	assert.Contains(t, n.Message, "expired")
	assert.False(t, store.IsJobRunning("plaid-sync"))
}

func TestPollerRetriesTransientErrors(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	transient := errors.New("connection reset")
	source := &scriptedSource{responses: []response{
		{err: transient},
		{err: transient},
		{status: Status{Status: "finished"}},
	}}
	rec := &recordingRecorder{}
	h := startPoller(t, store, Job{ID: "job-1", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, Options{
		Retry:    retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1},
		Recorder: rec,
	})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultFinished, out.Result)
	assert.Equal(t, 1, out.Polls)
	assert.Equal(t, 3, source.Calls())
	assert.Equal(t, 2, rec.failures)
}

func TestPollerGivesUpAfterRetries(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Deleting", "job-1", "bulk-delete")

	source := &scriptedSource{responses: []response{{err: errors.New("connection refused")}}}
	h := startPoller(t, store, Job{ID: "job-1", Type: "bulk-delete", NotificationID: id, Label: "Bulk delete"}, source, Options{
		Retry: retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1},
	})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultLost, out.Result)
	assert.Error(t, out.Err)
	assert.GreaterOrEqual(t, source.Calls(), 1)

	n, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, notification.SeverityError, n.Severity)
	assert.Contains(t, n.Message, "connection refused")
	assert.False(t, store.IsJobRunning("bulk-delete"))
}

func TestPollerReportsStageProgress(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{
		{status: Status{Status: "started", Meta: &Meta{Stage: "fetching"}}},
		{status: Status{Status: "started", Meta: &Meta{Stage: "fetching"}}},
		{status: Status{Status: "started", Meta: &Meta{Stage: "categorizing"}}},
	}}
	events, cancel := store.Subscribe()
	defer cancel()

	h := startPoller(t, store, Job{ID: "job-1", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, Options{})

	h.tick(t)
	ev := <-events
	assert.Equal(t, notification.EventUpdated, ev.Kind)
	n, _ := store.Get(id)
	assert.Equal(t, "Bank sync: fetching", n.Message)
	assert.True(t, n.Persistent)

	h.tick(t)
	h.tick(t)
	ev = <-events
	assert.Equal(t, notification.EventUpdated, ev.Kind)
	n, _ = store.Get(id)
	assert.Equal(t, "Bank sync: categorizing", n.Message)
	assert.True(t, store.IsJobRunning("plaid-sync"))
}

func TestPollerStopsWhenSuperseded(t *testing.T) {
	store := newJobStore(t)
	idA := store.ShowJobProgress("Sync A", "job-a", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "started"}}}}
	h := startPoller(t, store, Job{ID: "job-a", Type: "plaid-sync", NotificationID: idA}, source, Options{})

	require.True(t, h.tick(t))
	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	idB := store.ShowJobProgress("Sync B", "job-b", "plaid-sync")
	h.tick(t)
	out := h.wait(t)

	assert.Equal(t, ResultStale, out.Result)
	assert.Equal(t, 1, source.Calls(), "no request is made for a superseded job")
	b, ok := store.Get(idB)
	require.True(t, ok)
	assert.Equal(t, "Sync B", b.Message)
	assert.True(t, store.IsJobRunning("plaid-sync"))
}

func TestPollerDiscardsLateResponseForSupersededJob(t *testing.T) {
	store := newJobStore(t)
	idA := store.ShowJobProgress("Sync A", "job-a", "plaid-sync")

	inFlight := make(chan struct{})
	release := make(chan struct{})
	source := StatusSourceFunc(func(context.Context, string) (Status, error) {
		close(inFlight)
		<-release
		return Status{Status: "finished", Result: json.RawMessage(`{"added":1}`)}, nil
	})
	finished := false
	h := startPoller(t, store, Job{ID: "job-a", Type: "plaid-sync", NotificationID: idA}, source, Options{
		Summarizer: syncSummary(),
		OnFinished: func(context.Context, Status) { finished = true },
	})

	h.tick(t)
	<-inFlight
	idB := store.ShowJobProgress("Sync B", "job-b", "plaid-sync")
	close(release)
	out := h.wait(t)

	assert.Equal(t, ResultStale, out.Result)
	assert.False(t, finished, "stale results have no side effects")

	b, ok := store.Get(idB)
	require.True(t, ok)
	assert.Equal(t, "Sync B", b.Message)
	assert.True(t, b.Persistent)
	active, ok := store.GetActiveJob("plaid-sync")
	require.True(t, ok)
	assert.Equal(t, "job-b", active.JobID)
}

func TestPollerStopsWhenJobCleared(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "started"}}}}
	h := startPoller(t, store, Job{ID: "job-1", Type: "plaid-sync", NotificationID: id}, source, Options{})

	store.ClearJob("plaid-sync")
	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultStale, out.Result)
	assert.Equal(t, 0, source.Calls())
}

func TestPollerUntypedJob(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Working", "job-1", "")

	source := &scriptedSource{responses: []response{{status: Status{Status: "finished"}}}}
	h := startPoller(t, store, Job{ID: "job-1", NotificationID: id}, source, Options{})

	h.tick(t)
	out := h.wait(t)
	assert.Equal(t, ResultFinished, out.Result)
	assert.Equal(t, "Job completed", out.Message)
}

func TestPollerCancellation(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "started"}}}}
	p := NewPoller(Job{ID: "job-1", Type: "plaid-sync", NotificationID: id}, source, store, Options{
		TickChan: make(chan time.Time),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := p.Run(ctx)

	assert.Equal(t, ResultCancelled, out.Result)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.True(t, store.IsJobRunning("plaid-sync"), "cancelling stops tracking only")
	n, _ := store.Get(id)
	assert.True(t, n.Persistent)
}

func TestPollerRealTimersUseInitialDelay(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "finished"}}}}
	p := NewPoller(Job{ID: "job-1", Type: "plaid-sync", NotificationID: id}, source, store, Options{
		Interval:     time.Hour,
		InitialDelay: 10 * time.Millisecond,
	})

	done := make(chan Outcome, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case out := <-done:
		assert.Equal(t, ResultFinished, out.Result)
		assert.Equal(t, 1, out.Polls)
	case <-time.After(2 * time.Second):
		t.Fatal("early poll did not fire")
	}
}

func TestPollerMaxDuration(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "started"}}}}
	p := NewPoller(Job{ID: "job-1", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, store, Options{
		TickChan:    make(chan time.Time),
		MaxDuration: 20 * time.Millisecond,
	})

	out := p.Run(context.Background())
	assert.Equal(t, ResultTimeout, out.Result)
	n, _ := store.Get(id)
	assert.Equal(t, notification.SeverityWarning, n.Severity)
	assert.False(t, store.IsJobRunning("plaid-sync"))
}

func TestNewPollerPanicsOnNilDependencies(t *testing.T) {
	store := newJobStore(t)
	source := &scriptedSource{}
	assert.Panics(t, func() { NewPoller(Job{}, nil, store, Options{}) })
	assert.Panics(t, func() { NewPoller(Job{}, source, nil, Options{}) })
}

func TestResultResolved(t *testing.T) {
	assert.True(t, ResultFinished.Resolved())
	assert.True(t, ResultExpired.Resolved())
	assert.False(t, ResultStale.Resolved())
	assert.False(t, ResultCancelled.Resolved())
}

func TestPollerGivesUpWithoutTrailingDelay(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{err: errors.New("connection refused")}}}
	h := startPoller(t, store, Job{ID: "job-1", Type: "plaid-sync", NotificationID: id, Label: "Bank sync"}, source, Options{
		Retry: retry.Strategy{Attempts: 2, Delay: 400 * time.Millisecond, Backoff: 2},
	})

	start := time.Now()
	h.tick(t)
	out := h.wait(t)
	elapsed := time.Since(start)

	assert.Equal(t, ResultLost, out.Result)
	assert.Equal(t, 2, source.Calls())
	// One delay between the two attempts, none after the last.
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 1100*time.Millisecond)
}

func TestPollerCancelInterruptsRetryDelay(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{err: errors.New("connection refused")}}}
	ticks := make(chan time.Time)
	p := NewPoller(Job{ID: "job-1", Type: "plaid-sync", NotificationID: id}, source, store, Options{
		TickChan: ticks,
		Retry:    retry.Strategy{Attempts: 3, Delay: 10 * time.Second, Backoff: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan Outcome, 1)
	go func() { done <- p.Run(ctx) }()

	ticks <- time.Now()
	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, ResultCancelled, out.Result)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not interrupt the retry delay")
	}
	assert.True(t, store.IsJobRunning("plaid-sync"))
}

func TestPollerZeroInitialDelayPollsImmediately(t *testing.T) {
	store := newJobStore(t)
	id := store.ShowJobProgress("Syncing", "job-1", "plaid-sync")

	source := &scriptedSource{responses: []response{{status: Status{Status: "finished"}}}}
	p := NewPoller(Job{ID: "job-1", Type: "plaid-sync", NotificationID: id}, source, store, Options{
		Interval: time.Hour,
	})

	done := make(chan Outcome, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case out := <-done:
		assert.Equal(t, ResultFinished, out.Result)
		assert.Equal(t, 1, out.Polls)
	case <-time.After(2 * time.Second):
		t.Fatal("first poll waited for the interval")
	}
}
