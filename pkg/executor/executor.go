// Package executor wraps remote calls with bounded exponential-backoff retry
// on rate-limit signals.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retry behaviour of Do.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultPolicy matches the pacing the search providers tolerate.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Factor:       1.5,
	}
}

// RateLimited is implemented by errors that carry a throttling signal.
type RateLimited interface {
	error
	RateLimited() bool
	RetryAfter() time.Duration
}

// IsRateLimited reports whether any error in err's chain is a throttling error.
func IsRateLimited(err error) bool {
	var rl RateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

// Notify is called before each retry with the error that triggered it and the
// delay about to be waited.
type Notify func(err error, attempt int, wait time.Duration)

// Option customises a single Do call.
type Option func(*settings)

type settings struct {
	timer  backoff.Timer
	notify Notify
}

// WithTimer replaces the wall-clock timer used between retries.
func WithTimer(t backoff.Timer) Option {
	return func(s *settings) { s.timer = t }
}

// WithNotify registers a callback invoked before every retry.
func WithNotify(n Notify) Option {
	return func(s *settings) { s.notify = n }
}

// Do runs op, retrying only rate-limited failures up to p.MaxRetries times.
// Any other error is returned immediately. When retries are exhausted the last
// error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	hinted := &retryAfterBackOff{delegate: p.exponential(), maxDelay: p.MaxDelay}
	var b backoff.BackOff = backoff.WithMaxRetries(hinted, uint64(max(p.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	var result T
	attempt := 0
	operation := func() error {
		res, err := op(ctx)
		if err == nil {
			result = res
			return nil
		}
		var rl RateLimited
		if !errors.As(err, &rl) || !rl.RateLimited() {
			return backoff.Permanent(err)
		}
		hinted.hint = rl.RetryAfter()
		return err
	}
	notify := func(err error, wait time.Duration) {
		attempt++
		if s.notify != nil {
			s.notify(err, attempt, wait)
		}
	}

	if err := backoff.RetryNotifyWithTimer(operation, b, notify, s.timer); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (p Policy) exponential() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = p.Factor
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// retryAfterBackOff prefers a provider-suggested wait over the computed one.
// The exponential schedule still advances so later retries keep growing.
type retryAfterBackOff struct {
	delegate *backoff.ExponentialBackOff
	maxDelay time.Duration
	hint     time.Duration
}

func (r *retryAfterBackOff) NextBackOff() time.Duration {
	next := r.delegate.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if r.hint > 0 {
		next = r.hint
		r.hint = 0
	}
	if r.maxDelay > 0 && next > r.maxDelay {
		next = r.maxDelay
	}
	return next
}

func (r *retryAfterBackOff) Reset() {
	r.hint = 0
	r.delegate.Reset()
}
