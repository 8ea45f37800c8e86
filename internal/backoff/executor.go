package backoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseSleep   = 800 * time.Millisecond
	DefaultMaxSleep    = 10 * time.Second
)

// ErrTransientExhausted is returned when every attempt failed at the transport
// level and no response was ever received.
var ErrTransientExhausted = errors.New("request failed after retries with no response")

// Call performs exactly one network request.
type Call func(ctx context.Context) (*http.Response, error)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs a Call under the retry policy shared by every remote operation.
// It has no knowledge of URLs or payloads.
type Executor struct {
	MaxAttempts int
	BaseSleep   time.Duration
	MaxSleep    time.Duration
	Sleep       SleepFunc
	Logger      *slog.Logger
}

// NewExecutor returns an Executor with the default policy (5 attempts, 0.8s base, 10s cap).
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		MaxAttempts: DefaultMaxAttempts,
		BaseSleep:   DefaultBaseSleep,
		MaxSleep:    DefaultMaxSleep,
		Sleep:       sleepContext,
		Logger:      logger,
	}
}

// Execute runs call until it succeeds, fails terminally, or attempts run out.
// On exhaustion the last response is returned even if its status is an error,
// so callers can inspect it. ErrTransientExhausted is returned only when no
// response was ever obtained.
func (e *Executor) Execute(ctx context.Context, call Call) (*http.Response, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var resp *http.Response
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next, err := call(ctx)
		if err == nil && next != nil {
			if resp != nil {
				discard(resp)
			}
			resp = next
			if !Retryable(resp.StatusCode) {
				return resp, nil
			}
		} else if err != nil {
			lastErr = err
		}

		var retryAfter time.Duration
		status := 0
		if resp != nil {
			retryAfter = RetryAfter(resp.Header)
			status = resp.StatusCode
		}
		delay := e.Delay(attempt, retryAfter)
		logger.Warn("Remote call failed, backing off.",
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"status", status,
			"delay", delay.String(),
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			if resp != nil {
				return resp, nil
			}
			return nil, err
		}
	}

	if resp == nil {
		return nil, fmt.Errorf("%w: %d attempts: %v", ErrTransientExhausted, maxAttempts, lastErr)
	}
	return resp, nil
}

// Delay computes max(retryAfter, min(MaxSleep, BaseSleep * 2^(attempt-1))) for a
// 1-indexed attempt.
func (e *Executor) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(e.BaseSleep) * math.Pow(2, float64(attempt-1))
	delay := e.MaxSleep
	if exp < float64(e.MaxSleep) {
		delay = time.Duration(exp)
	}
	if retryAfter > delay {
		return retryAfter
	}
	return delay
}

// Retryable reports whether a status code warrants another attempt: 429 and 5xx.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryAfter parses a numeric Retry-After header in seconds. Absent or
// non-numeric values yield zero; values past the Duration range saturate.
func RetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	if seconds >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}

func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
