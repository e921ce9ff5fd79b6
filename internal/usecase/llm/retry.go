// Package llm provides decorators around the chat-completion provider.
package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
)

// RetryPolicy controls the exponential backoff applied to completion calls.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     8 * time.Second,
	}
}

// RetryingCompleter wraps a domain.Completer with exponential backoff.
// Provider errors are transient by nature (rate limits, overload), so every
// failure is retried up to the attempt limit; context cancellation aborts
// the loop immediately.
type RetryingCompleter struct {
	inner  domain.Completer
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingCompleter creates a retrying decorator around inner.
func NewRetryingCompleter(inner domain.Completer, policy RetryPolicy, logger *zap.Logger) *RetryingCompleter {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RetryingCompleter{inner: inner, policy: policy, logger: logger}
}

// Complete implements domain.Completer.
func (r *RetryingCompleter) Complete(
	ctx context.Context, prompt string, maxTokens int, temperature float32,
) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialDelay
	bo.Multiplier = r.policy.Multiplier
	bo.MaxInterval = r.policy.MaxDelay

	return backoff.Retry(ctx,
		func() (string, error) {
			return r.inner.Complete(ctx, prompt, maxTokens, temperature)
		},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("completion attempt failed, retrying",
				zap.Error(err),
				zap.Duration("next_delay", next),
			)
		}),
	)
}
