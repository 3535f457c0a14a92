// Package orchestrator triggers the downstream analytics job on the remote
// workspace once fresh data has landed.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const runNowPath = "/api/2.1/jobs/run-now"

var (
	// ErrJobNotConfigured is returned when no job id is set.
	ErrJobNotConfigured = errors.New("orchestrator: job id not configured")
	// ErrHostNotConfigured is returned when the connection has no host.
	ErrHostNotConfigured = errors.New("orchestrator: connection host not configured")
)

// Options identifies the remote job and how hard to try reaching it.
type Options struct {
	JobID        int64
	ConnectionID string
	Host         string
	Token        string
	Retries      int
	RetryDelay   time.Duration
	Timeout      time.Duration
}

// RunNowResult is the remote acknowledgement of a triggered run.
type RunNowResult struct {
	RunID    int64 `json:"run_id"`
	Attempts int   `json:"-"`
}

// StatusError reports a non-2xx answer after retries were exhausted.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("run-now returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("run-now returned status %d: %s", e.StatusCode, e.Body)
}

// Trigger invokes run-now on a configured job.
type Trigger struct {
	opts   Options
	client *resty.Client
	logger zerolog.Logger
}

// New builds a Trigger. Retries are attempted on transport errors, 429 and
// 5xx responses with a fixed wait between attempts.
func New(opts Options, logger zerolog.Logger) (*Trigger, error) {
	if opts.JobID <= 0 {
		return nil, ErrJobNotConfigured
	}
	if strings.TrimSpace(opts.Host) == "" {
		return nil, ErrHostNotConfigured
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.Host, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryDelay).
		SetRetryMaxWaitTime(opts.RetryDelay).
		AddRetryCondition(shouldRetry)
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Trigger{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "orchestrator").Int64("job_id", opts.JobID).Logger(),
	}, nil
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// RunNow starts one run of the configured job. No data payload is sent.
func (t *Trigger) RunNow(ctx context.Context) (RunNowResult, error) {
	t.logger.Info().Str("connection", t.opts.ConnectionID).Msg("triggering remote job")

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]int64{"job_id": t.opts.JobID}).
		Post(runNowPath)
	if err != nil {
		return RunNowResult{}, fmt.Errorf("run-now job %d: %w", t.opts.JobID, err)
	}

	attempts := 1
	if resp.Request != nil {
		attempts = resp.Request.Attempt
	}

	if resp.IsError() {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
		t.logger.Error().Int("status", resp.StatusCode()).Int("attempts", attempts).Msg("remote job trigger failed")
		return RunNowResult{}, fmt.Errorf("run-now job %d: %w", t.opts.JobID, statusErr)
	}

	var result RunNowResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return RunNowResult{}, fmt.Errorf("decode run-now response: %w", err)
	}
	result.Attempts = attempts

	t.logger.Info().Int64("run_id", result.RunID).Int("attempts", attempts).Msg("remote job triggered")
	return result, nil
}
