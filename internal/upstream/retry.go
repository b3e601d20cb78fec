package upstream

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/wakakowasake/favthing/internal/domain"
)

// RetryConfig controls RetryWithBackoff. OnRetry, when set, is called after a
// transient failure and before the wait that precedes the next attempt.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	OnRetry      func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig is three attempts waiting about 1s then 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// delay is the un-jittered wait after the given failed attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if c.MaxDelay > 0 && time.Duration(d) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// wait jitters delay by ±25%, capped at MaxDelay.
func (c RetryConfig) wait(attempt int) time.Duration {
	jittered := time.Duration(float64(c.delay(attempt)) * (0.75 + rand.Float64()*0.5))
	if c.MaxDelay > 0 && jittered > c.MaxDelay {
		return c.MaxDelay
	}
	return jittered
}

// RetryWithBackoff calls fn until it succeeds, returns a permanent error, or
// MaxAttempts is used up; the last error is returned unchanged. A canceled
// ctx ends the wait between attempts with ctx.Err().
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt >= attempts || !IsTransient(err) {
			return err
		}

		wait := cfg.wait(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var transientMessages = []string{
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"tls",
	"eof",
}

// IsTransient reports whether err may succeed on retry. Upstream statuses
// decide on their own (5xx and 429 retry); otherwise timeouts, network
// errors and truncated reads retry. Cancellation never does.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Status != 0 {
		return upstreamErr.Retryable()
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range transientMessages {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
