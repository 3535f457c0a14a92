package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(host string) Options {
	return Options{
		JobID:        558961576002013,
		ConnectionID: "databricks_default",
		Host:         host,
		Token:        "dapi-test",
		Retries:      2,
		RetryDelay:   10 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestRunNowSuccess(t *testing.T) {
	var body map[string]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/2.1/jobs/run-now", r.URL.Path)
		assert.Equal(t, "Bearer dapi-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"run_id": 4242, "number_in_job": 1}`))
	}))
	defer srv.Close()

	trigger, err := New(testOptions(srv.URL+"/"), zerolog.Nop())
	require.NoError(t, err)

	result, err := trigger.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4242), result.RunID)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, map[string]int64{"job_id": 558961576002013}, body)
}

func TestRunNowRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"run_id": 7}`))
	}))
	defer srv.Close()

	trigger, err := New(testOptions(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	result, err := trigger.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.RunID)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, result.Attempts)
}

func TestRunNowExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	trigger, err := New(testOptions(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = trigger.RunNow(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunNowDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	trigger, err := New(testOptions(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = trigger.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewValidatesOptions(t *testing.T) {
	opts := testOptions("https://dbc.example")
	opts.JobID = 0
	_, err := New(opts, zerolog.Nop())
	assert.ErrorIs(t, err, ErrJobNotConfigured)

	opts = testOptions(" ")
	_, err = New(opts, zerolog.Nop())
	assert.ErrorIs(t, err, ErrHostNotConfigured)
}
