package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cristianoliveira/job-intray/internal/api/fakebackend"
	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, opts ...fakebackend.Option) (*fakebackend.Server, *httptest.Server) {
	t.Helper()
	backend := fakebackend.New(opts...)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv
}

func TestStartEndpointsReturnJobIDs(t *testing.T) {
	_, srv := newBackend(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	id, err := c.StartPlaidSync(ctx, "item-1")
	require.NoError(t, err)
	assert.Contains(t, id, "plaid-sync-")

	id, err = c.StartConversion(ctx, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Contains(t, id, "convert-transactions-")

	id, err = c.StartBulkDelete(ctx, []string{"t1"})
	require.NoError(t, err)
	assert.Contains(t, id, "bulk-delete-")

	id, err = c.StartStatementProcessing(ctx, "stmt-9")
	require.NoError(t, err)
	assert.Contains(t, id, "statement-process-")

	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestStartValidationErrorsBecomeAPIError(t *testing.T) {
	_, srv := newBackend(t)
	c := New(srv.URL)

	_, err := c.StartPlaidSync(context.Background(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "item_id is required", apiErr.Message)
	assert.Contains(t, err.Error(), "422")
}

func TestStartFailure(t *testing.T) {
	backend, srv := newBackend(t)
	backend.FailStart(fakebackend.KindBulkDelete, http.StatusServiceUnavailable, "maintenance")
	c := New(srv.URL)

	_, err := c.StartBulkDelete(context.Background(), []string{"t1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, 0, backend.Starts())
}

func TestGetJobStatusFollowsScript(t *testing.T) {
	backend, srv := newBackend(t)
	backend.Script(fakebackend.KindPlaidSync,
		fakebackend.Queued(),
		fakebackend.Started("fetching"),
		fakebackend.Finished(`{"added":3}`),
	)
	c := New(srv.URL)
	ctx := context.Background()

	id, err := c.StartPlaidSync(ctx, "item-1")
	require.NoError(t, err)

	st, err := c.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "queued", st.Status)

	st, err = c.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fetching", st.Stage())

	st, err = c.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.PhaseFinished, jobs.Classify(st))
	assert.JSONEq(t, `{"added":3}`, string(st.Result))
	assert.Equal(t, 3, backend.Polls(id))
}

func TestGetJobStatusNotFound(t *testing.T) {
	backend, srv := newBackend(t)
	c := New(srv.URL)
	ctx := context.Background()

	id, err := c.StartConversion(ctx, []string{"t1"})
	require.NoError(t, err)
	backend.Expire(id)

	_, err = c.GetJobStatus(ctx, id)
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))

	_, err = c.GetJobStatus(ctx, "never-existed")
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))
}

func TestTokenIsSent(t *testing.T) {
	_, srv := newBackend(t, fakebackend.WithToken("s3cret"))

	_, err := New(srv.URL).StartPlaidSync(context.Background(), "item-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = New(srv.URL, WithToken("s3cret")).StartPlaidSync(context.Background(), "item-1")
	assert.NoError(t, err)
}

func TestIdempotencyKeyPerStart(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(IdempotencyHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"j"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StartPlaidSync(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.StartPlaidSync(context.Background(), "a")
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).StartBulkDelete(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, ErrMissingJobID))
}

func TestTransportErrorIsNotNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).GetJobStatus(context.Background(), "job-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, jobs.ErrJobNotFound))
}

func TestServerErrorBodyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetJobStatus(context.Background(), "job-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestRefresh(t *testing.T) {
	backend, srv := newBackend(t)
	backend.SetResource("transactions", 5)
	c := New(srv.URL)

	n, err := c.Refresh(context.Background(), "transactions")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = c.Refresh(context.Background(), "unknown")
	assert.Error(t, err)
}

func TestCountItems(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`[1,2,3]`, 3},
		{`{"items":[1,2]}`, 2},
		{`{"count":7,"items":[]}`, 7},
		{`{}`, 0},
	}
	for _, tt := range tests {
		n, err := countItems([]byte(tt.raw))
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, tt.raw)
	}
	_, err := countItems([]byte(`"nope"`))
	assert.Error(t, err)
}
