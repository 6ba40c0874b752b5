// Package client is a Go client for the genqueue HTTP API. Besides the plain
// endpoint calls it implements the polling contract: poll a job with
// exponential backoff, stop on 404, and give up after a client-side maximum
// wait that is independent of the server's job timeout.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/api"
)

// PollConfig controls Wait.
type PollConfig struct {
	// InitialInterval is the delay before the second poll.
	InitialInterval time.Duration
	// MaxInterval caps the delay between polls.
	MaxInterval time.Duration
	// Multiplier grows the delay after every poll.
	Multiplier float64
	// MaxWait bounds the whole wait. Zero means wait until ctx ends.
	MaxWait time.Duration
}

// DefaultPollConfig returns the polling settings used when none are given.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxWait:         10 * time.Minute,
	}
}

// Client talks to a genqueue server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	poll       PollConfig
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithPollConfig overrides the polling settings.
func WithPollConfig(cfg PollConfig) Option {
	return func(c *Client) { c.poll = cfg }
}

// WithLogger sets the logger used for poll diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL, e.g.
// "http://localhost:8080/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		poll:       DefaultPollConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.poll.InitialInterval <= 0 {
		c.poll.InitialInterval = DefaultPollConfig().InitialInterval
	}
	if c.poll.MaxInterval < c.poll.InitialInterval {
		c.poll.MaxInterval = c.poll.InitialInterval
	}
	if c.poll.Multiplier < 1 {
		c.poll.Multiplier = 1
	}
	return c, nil
}

// Submit creates a job and returns its id.
func (c *Client) Submit(ctx context.Context, req api.CreateJobRequest) (uuid.UUID, error) {
	var resp api.CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(resp.JobID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("server returned invalid job id %q: %w", resp.JobID, err)
	}
	return id, nil
}

// Status fetches the current snapshot of a job.
func (c *Client) Status(ctx context.Context, id uuid.UUID) (*api.JobStatusResponse, error) {
	var resp api.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches queue statistics.
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Wait polls the job until it is COMPLETED or FAILED.
//
// A 404 ends the wait with ErrJobNotFound. Transport errors and 5xx
// responses are retried on the normal schedule. When MaxWait elapses first,
// Wait returns the last snapshot seen (possibly nil) with ErrWaitTimeout.
func (c *Client) Wait(ctx context.Context, id uuid.UUID) (*api.JobStatusResponse, error) {
	waitCtx := ctx
	if c.poll.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.poll.MaxWait)
		defer cancel()
	}

	var last *api.JobStatusResponse
	delay := c.poll.InitialInterval
	for polls := 1; ; polls++ {
		status, err := c.Status(waitCtx, id)
		switch {
		case err == nil:
			last = status
			if status.Status.IsTerminal() {
				return status, nil
			}
		case errors.Is(err, ErrJobNotFound):
			return nil, err
		case waitCtx.Err() != nil:
			// fall through to the deadline check below
		case !retryable(err):
			return last, err
		default:
			c.logger.DebugContext(ctx, "poll failed, retrying", "job_id", id, "poll", polls, "error", err)
		}

		timer := time.NewTimer(jitter(delay))
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("%w after %s", ErrWaitTimeout, c.poll.MaxWait)
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * c.poll.Multiplier)
		if delay > c.poll.MaxInterval {
			delay = c.poll.MaxInterval
		}
	}
}

// SubmitAndWait submits a job and waits for its terminal snapshot.
func (c *Client) SubmitAndWait(ctx context.Context, req api.CreateJobRequest) (*api.JobStatusResponse, error) {
	id, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, id)
}

// jitter spreads d over [d/2, d] so many clients do not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
