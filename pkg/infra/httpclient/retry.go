package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/hirosegw/changeboard/pkg/domain/types"
)

// RateLimit is the result of inspecting a 403/429 response's quota headers
type RateLimit struct {
	Limited  bool
	Reset    time.Time
	HasReset bool
}

// RateLimitParser extracts rate-limit state from a 403/429 response
type RateLimitParser func(resp *http.Response) RateLimit

// Policy parameterizes the retry loop so rate-limit semantics can be
// unit-tested without network I/O
type Policy struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxRateLimitWait time.Duration // waits longer than this return the response instead of blocking
	WaitBuffer       time.Duration // added on top of the reported reset wait
	ParseRateLimit   RateLimitParser
}

// DefaultPolicy returns the policy shared by all provider adapters
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       3,
		BaseDelay:        500 * time.Millisecond,
		MaxRateLimitWait: 10 * time.Second,
		WaitBuffer:       500 * time.Millisecond,
		ParseRateLimit:   ParseRateLimitHeaders,
	}
}

// ParseRateLimitHeaders understands the header families used by GitHub,
// GitLab and Gitea: X-RateLimit-Remaining/X-RateLimit-Reset,
// RateLimit-Remaining/RateLimit-Reset and Retry-After. A 429 is always a
// rate limit; a 403 only when the remaining quota reads zero.
func ParseRateLimitHeaders(resp *http.Response) RateLimit {
	var rl RateLimit

	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		remaining = resp.Header.Get("RateLimit-Remaining")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rl.Limited = true
	case resp.StatusCode == http.StatusForbidden && remaining == "0":
		rl.Limited = true
	default:
		return rl
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			rl.Reset = time.Now().Add(time.Duration(secs) * time.Second)
			rl.HasReset = true
			return rl
		}
	}

	reset := resp.Header.Get("X-RateLimit-Reset")
	if reset == "" {
		reset = resp.Header.Get("RateLimit-Reset")
	}
	if reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			rl.Reset = time.Unix(unix, 0)
			rl.HasReset = true
		}
	}

	return rl
}

// Client executes HTTP requests with exponential backoff and rate-limit-aware
// waiting. It fails only when transport-level errors exhaust all retries;
// any HTTP response, including non-2xx, is returned to the caller.
type Client struct {
	http   *http.Client
	policy Policy
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithHTTPClient sets the underlying transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock overrides the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithSleep overrides the backoff sleep, for tests
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// New creates a retry-aware HTTP client with the given policy
func New(policy Policy, opts ...Option) *Client {
	if policy.ParseRateLimit == nil {
		policy.ParseRateLimit = ParseRateLimitHeaders
	}
	c := &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: policy,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET request for the URL with the given headers
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("url", url))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(ctx, req)
}

// Do executes the request, retrying per the policy:
//   - transport failure: exponential backoff, error after MaxRetries
//   - 2xx: returned immediately
//   - rate-limited 403/429: wait for the reported reset when it is near,
//     return the response when it is far, generic backoff when unreported
//   - other 4xx: returned immediately, not retryable
//   - 5xx and everything else: exponential backoff, last response returned
//     once MaxRetries is exhausted
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.BaseDelay
	bo.RandomizationFactor = 0.3
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 0; ; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			if attempt >= c.policy.MaxRetries {
				return nil, goerr.Wrap(err, "Network error",
					goerr.T(types.ErrTagNetwork),
					goerr.V("url", req.URL.String()),
					goerr.V("attempts", attempt+1),
				)
			}
			if serr := c.sleep(ctx, bo.NextBackOff()); serr != nil {
				return nil, goerr.Wrap(serr, "Network error", goerr.T(types.ErrTagNetwork))
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		retryable := resp.StatusCode >= 500

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			rl := c.policy.ParseRateLimit(resp)
			switch {
			case rl.Limited && rl.HasReset:
				wait := rl.Reset.Sub(c.now())
				if wait > c.policy.MaxRateLimitWait {
					// Blocking the whole fetch pool for a distant reset is
					// worse than surfacing the response.
					return resp, nil
				}
				if attempt >= c.policy.MaxRetries {
					return resp, nil
				}
				drain(resp)
				if wait < 0 {
					wait = 0
				}
				if serr := c.sleep(ctx, wait+c.policy.WaitBuffer); serr != nil {
					return nil, goerr.Wrap(serr, "Network error", goerr.T(types.ErrTagNetwork))
				}
				continue
			case rl.Limited:
				// No reset reported, fall through to generic backoff.
				retryable = true
			default:
				return resp, nil
			}
		}

		if !retryable || attempt >= c.policy.MaxRetries {
			return resp, nil
		}

		drain(resp)
		if serr := c.sleep(ctx, bo.NextBackOff()); serr != nil {
			return nil, goerr.Wrap(serr, "Network error", goerr.T(types.ErrTagNetwork))
		}
	}
}

// drain discards the body of a response that will not be returned so the
// transport connection can be reused
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
