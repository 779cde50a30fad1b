// Package retry runs transient operations under a capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/metrics"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when configuration leaves the policy unset.
var DefaultPolicy = Policy{
	MaxAttempts:     8,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Permanent marks err as terminal: Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	// The attempt cap is the only budget.
	exp.MaxElapsedTime = 0

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempt cap is
// reached or ctx is done. Each failed attempt is logged at warn level under op.
func Do(ctx context.Context, p Policy, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, logger *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	terminal := false
	operation := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		switch {
		case err == nil:
		case isPermanent(err):
			terminal = true
		case ctx.Err() != nil:
			terminal = true
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		metrics.RetryAttempts.WithLabelValues(op).Inc()
		logger.Warn("Operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("next_in", next),
			zap.Error(err),
		)
	}

	v, err := backoff.RetryNotifyWithData(operation, p.backOff(ctx), notify)
	if err != nil && !terminal && attempt > 1 {
		logger.Error("Operation gave up after retries",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return v, err
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
