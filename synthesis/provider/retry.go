package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

// RetryPolicy bounds transport-level retries inside one backend call. The pipelines run their
// own unit-level retry loop on top of this.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitWaits:   []time.Duration{20 * time.Second, 45 * time.Second, 90 * time.Second},
		ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

// CallWithRetry runs call until it succeeds, fails with a non-transient error, or runs out of
// attempts. Waits honor ctx. The returned error is always a *synthesis.BackendError.
func CallWithRetry[T any](ctx context.Context, task synthesis.Task, op string, policy RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr *synthesis.BackendError
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = classify(task, op, err)
		if !lastErr.Retryable || attempt == attempts-1 {
			break
		}

		waits := policy.ServerErrorWaits
		if isRateLimit(lastErr.StatusCode, err) {
			waits = policy.RateLimitWaits
		}
		if err := sleep(ctx, waitFor(waits, attempt)); err != nil {
			return zero, classify(task, op, err)
		}
	}
	if lastErr == nil {
		lastErr = &synthesis.BackendError{Task: task, Op: op, Err: fmt.Errorf("failed after %d attempts", attempts)}
	}
	return zero, lastErr
}

func waitFor(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	return waits[min(attempt, len(waits)-1)]
}

func sleep(ctx context.Context, d time.Duration) error {
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

// classify maps an SDK or transport error onto the backend error taxonomy. Rate limits, 5xx,
// timeouts and errors without a status are retryable; other 4xx are fatal; context
// cancellation never is.
func classify(task synthesis.Task, op string, err error) *synthesis.BackendError {
	var be *synthesis.BackendError
	if errors.As(err, &be) {
		return be
	}
	out := &synthesis.BackendError{Task: task, Op: op, Err: err, StatusCode: statusCode(err)}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return out
	}
	switch {
	case isRateLimit(out.StatusCode, err), isServerError(out.StatusCode, err):
		out.Retryable = true
	case out.StatusCode >= 400:
		out.Retryable = false
	default:
		out.Retryable = true
	}
	return out
}

func statusCode(err error) int {
	var oe *openai.Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	var ge *genai.APIError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

func isRateLimit(status int, err error) bool {
	if status == 429 {
		return true
	}
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "resource_exhausted")
}

func isServerError(status int, err error) bool {
	switch {
	case status >= 500, status == 408:
		return true
	case status >= 400, err == nil:
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error") ||
		strings.Contains(s, "timeout")
}
