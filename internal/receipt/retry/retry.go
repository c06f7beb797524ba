// Package retry wraps fallible operations with bounded exponential backoff.
//
// Classification is signature-based: an error is retried when its message contains one of
// the configured retryable substrings (case-insensitive), or when it reports itself as
// retryable through an IsRetryable() bool method. Errors that report IsClientError() true,
// or whose message carries an explicit 4xx status, fail fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// DefaultRetryable lists the error signatures treated as transient by default.
var DefaultRetryable = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"network",
	"econnreset",
	"connection reset",
	"connection refused",
	"econnrefused",
	"enotfound",
	"no such host",
	"eof",
	"socket hang up",
	"temporarily unavailable",
	"render",
}

// clientStatus matches explicit 4xx status mentions such as "status 404" or "HTTP 403".
var clientStatus = regexp.MustCompile(`(?i)\b(status|http|code)[ :=]*4\d\d\b`)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Number int           // 1-based number of the attempt that failed
	Err    error         // error returned by that attempt
	Delay  time.Duration // backoff before the next attempt
}

// Config configures the backoff policy. Zero values take the defaults.
type Config struct {
	MaxRetries   int           // Retries after the first attempt (default: 3, negative: none)
	InitialDelay time.Duration // Delay before the first retry (default: 1s)
	MaxDelay     time.Duration // Cap on any single delay (default: 10s)
	Multiplier   float64       // Exponential factor (default: 2)
	Retryable    []string      // Retryable signatures (default: DefaultRetryable)
	OnRetry      func(Attempt) // Optional observer, called before each sleep
}

// Predicate decides whether the error from attempt (0-based) should be retried.
type Predicate func(err error, attempt int) bool

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.Retryable == nil {
		c.Retryable = DefaultRetryable
	}
	return c
}

// Delay returns the backoff applied after the failed attempt with the given 0-based index.
func (c Config) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, fails with a non-retryable error, or exhausts MaxRetries.
// op is invoked at most MaxRetries+1 times.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	return run(ctx, cfg, func(err error, _ int) bool {
		return ShouldRetry(err, cfg.Retryable)
	}, op)
}

// DoWithPredicate is Do with caller-supplied retry logic replacing the signature set.
// Client-class errors are still never retried.
func DoWithPredicate(ctx context.Context, cfg Config, shouldRetry Predicate, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	return run(ctx, cfg, func(err error, attempt int) bool {
		return !IsClientError(err) && shouldRetry(err, attempt)
	}, op)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func run(ctx context.Context, cfg Config, retryable Predicate, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err, attempt) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(Attempt{Number: attempt + 1, Err: err, Delay: delay})
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), lastErr))
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// ShouldRetry reports whether err is transient under the given signatures.
func ShouldRetry(err error, signatures []string) bool {
	if err == nil || IsClientError(err) || errors.Is(err, context.Canceled) {
		return false
	}

	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range signatures {
		if sig != "" && strings.Contains(msg, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// IsClientError reports explicit 4xx-style rejections.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	var c interface{ IsClientError() bool }
	if errors.As(err, &c) {
		return c.IsClientError()
	}
	return clientStatus.MatchString(err.Error())
}
