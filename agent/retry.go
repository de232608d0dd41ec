package agent

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
)

// RetryPolicy configures retries of transient provider failures.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// Multiplier grows the delay between consecutive retries.
	Multiplier float64

	// MaxDelay caps a single wait. Zero means no cap beyond the backoff default.
	MaxDelay time.Duration

	// StatusCodes lists the statuses treated as transient.
	StatusCodes []int
}

// DefaultRetryPolicy retries rate limiting and server errors five times with
// a steep exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     5,
		InitialDelay: time.Second,
		Multiplier:   7,
		MaxDelay:     2 * time.Minute,
		StatusCodes:  []int{429, 500, 503, 504},
	}
}

// Retryable reports whether err should be attempted again. Status errors are
// retried only for the configured codes; errors without a status (transport
// failures, timeouts on the provider side) are retried; cancellation of the
// caller's context never is.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return slices.Contains(p.StatusCodes, code)
	}
	return !errors.Is(err, ErrEmptyResponse)
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.RandomizationFactor = 0.1
	return b
}

type retryClient struct {
	next   LLMClient
	policy RetryPolicy
}

// WithRetry wraps client so transient failures are retried according to
// policy. It is applied once when clients are constructed.
func WithRetry(client LLMClient, policy RetryPolicy) LLMClient {
	if policy.Attempts <= 1 {
		return client
	}
	return &retryClient{next: client, policy: policy}
}

func (r *retryClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	logger := logging.WithComponent("llm-retry")
	attempt := 0
	op := func() (*GenerateResponse, error) {
		attempt++
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !r.policy.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("retrying llm call",
			"attempt", attempt,
			"status", StatusCode(err),
			"wait", wait.String(),
			"error", err,
		)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.policy.backOff()),
		backoff.WithMaxTries(uint(r.policy.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
