// Package upstream wraps outbound HTTP calls to weather APIs with retries,
// exponential backoff, an optional rate limit, and a circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")

	// ErrCircuitOpen is returned without calling upstream while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// StatusError reports a non-retryable response status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Backoff controls retry timing. MaxRetries counts attempts after the first.
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// DefaultBackoff retries three times starting at 500ms, capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{MaxRetries: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}
}

// Client executes requests against one upstream.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	backoff    Backoff
}

// NewClient creates a Client whose breaker is named after the upstream.
// A zero rps disables rate limiting.
func NewClient(name string, httpClient *http.Client, backoff Backoff, rps float64) *Client {
	c := &Client{
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		backoff: backoff,
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// Do sends the request built by build, retrying on transport errors, 429 and
// 5xx responses. The caller must close the returned body.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	delay := c.backoff.Initial
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, build)
		if err == nil {
			return resp, nil
		}

		var statusErr *StatusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		case errors.As(err, &statusErr), ctx.Err() != nil:
			return nil, err
		case attempt >= c.backoff.MaxRetries:
			return nil, err
		}

		if !sleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
		delay = nextBackoff(delay, c.backoff.Max)
	}
}

func (c *Client) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			drain(resp)
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
