// Package retry re-invokes fallible operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"syscall"
	"time"
)

type options struct {
	maxRetries        int
	initialDelay      time.Duration
	backoffMultiplier float64
	shouldRetry       func(error) bool
	sleep             func(ctx context.Context, d time.Duration) error
}

// Option configures Do.
type Option func(*options)

// WithMaxRetries sets the number of retries after the first attempt. 0 means a single attempt.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.initialDelay = d
		}
	}
}

// WithBackoffMultiplier sets the growth factor between consecutive delays.
func WithBackoffMultiplier(m float64) Option {
	return func(o *options) {
		if m > 0 {
			o.backoffMultiplier = m
		}
	}
}

// WithShouldRetry sets the predicate deciding whether an error is worth another attempt.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.shouldRetry = fn
		}
	}
}

func defaults() options {
	return options{
		maxRetries:        3,
		initialDelay:      time.Second,
		backoffMultiplier: 2,
		shouldRetry:       func(error) bool { return true },
		sleep:             sleepCtx,
	}
}

// Do calls op until it succeeds, shouldRetry rejects its error, or maxRetries+1
// attempts have been made. The error of the last attempt is returned unwrapped.
// Cancelling ctx during a backoff wait returns ctx.Err().
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !o.shouldRetry(err) || attempt >= o.maxRetries {
			return zero, err
		}
		if serr := o.sleep(ctx, Backoff(attempt, o.initialDelay, o.backoffMultiplier)); serr != nil {
			return zero, serr
		}
	}
}

// Backoff returns initial * multiplier^attempt.
func Backoff(attempt int, initial time.Duration, multiplier float64) time.Duration {
	return time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// IsTransient reports whether err looks like a communication fault that may
// succeed on retry: timeouts, refused or reset connections, DNS failures and aborts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fetch failed") || strings.Contains(msg, "timeout")
}
