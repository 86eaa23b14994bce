package azurestore

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
)

// newBreaker returns a gobreaker.CircuitBreaker configured the same way for
// every capability instance: trip after 5 consecutive failures, half-open
// probe after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var de *domainErr
			return err == nil || errors.As(err, &de)
		},
	})
}

// callWithRetry runs fn through the breaker, retrying with exponential
// backoff (capped at 4 attempts) while the breaker stays closed. It's the
// shared dispatch path for every azurestore binding method.
//
// fn must return a *domainErr-wrapped sentinel (via asDomainErr) for
// conditions that are NOT transient backend faults — a 412 precondition
// failure, a 404 not-found — so they pass straight back to the caller
// without retrying or tripping the breaker. Anything else is assumed
// transient and is both retried and folded into contentflowerr.Transient.
func callWithRetry(ctx context.Context, breaker *gobreaker.CircuitBreaker, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		var de *domainErr
		if errors.As(err, &de) {
			return de.err
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return contentflowerr.New(contentflowerr.Transient, err)
		}
		return retry.RetryableError(contentflowerr.New(contentflowerr.Transient, err))
	})
}

// domainErr marks an error as a definitive domain outcome (not-found,
// conflict) rather than a transient backend fault, so callWithRetry passes
// it through instead of retrying.
type domainErr struct{ err error }

func (d *domainErr) Error() string { return d.err.Error() }
func (d *domainErr) Unwrap() error { return d.err }

// asDomainErr wraps err so callWithRetry treats it as final, not transient.
func asDomainErr(err error) error {
	if err == nil {
		return nil
	}
	return &domainErr{err: err}
}
