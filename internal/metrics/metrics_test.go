package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "statement-process", Normalize("statement-process-42"))
	assert.Equal(t, "plaid-sync", Normalize("plaid-sync"))
	assert.Equal(t, "untyped", Normalize(""))
}

func TestRecorder(t *testing.T) {
	m := New()

	m.PollStarted("plaid-sync")
	m.PollStarted("plaid-sync")
	m.PollFailed("plaid-sync")
	m.PollStarted("statement-process-1")
	m.PollStarted("statement-process-2")
	m.JobResolved("statement-process-1", jobs.ResultFinished, 3*time.Second)
	m.SetActiveJobs(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("plaid-sync")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("statement-process")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollErrors.WithLabelValues("plaid-sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("statement-process", "finished")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.active))
}

func TestHandler(t *testing.T) {
	m := New()
	m.PollStarted("bulk-delete")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `job_intray_polls_total{job_type="bulk-delete"} 1`)
	assert.Contains(t, string(body), "job_intray_active_jobs 0")
}
