package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/metrics"
)

// RetryPolicy bounds how often and how patiently a call is retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Backoff returns the delay after the given zero-based failed attempt: base * 2^attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// execute runs call until it succeeds, fails terminally or exhausts the policy.
// It is only ever invoked from the dispatcher goroutine.
func (c *Client) execute(ctx context.Context, call Call) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			c.monitor.RecordRetry()
			metrics.RegistrarRetries.WithLabelValues(call.Endpoint).Inc()
			if err := c.sleep(ctx, c.retry.Backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, call)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.log.Debug("registrar attempt failed",
			"endpoint", call.Endpoint, "attempt", attempt+1, "error", err)

		if !IsRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}

// attempt bounds one round trip by the call timeout.
func (c *Client) attempt(ctx context.Context, call Call) (*Response, error) {
	timeout := c.cfg.Timeout
	if call.Timeout > 0 {
		timeout = call.Timeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.roundTrip(attemptCtx, call)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		if _, classified := KindOf(err); !classified {
			err = &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("%s exceeded %s", call.Endpoint, timeout),
				Err:     err,
			}
		}
	}
	return resp, err
}

// pace holds the dispatcher until minInterval has passed since the previous dispatch.
func (c *Client) pace(ctx context.Context) error {
	if !c.lastDispatch.IsZero() {
		if wait := c.minInterval - c.now().Sub(c.lastDispatch); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastDispatch = c.now()
	return nil
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
