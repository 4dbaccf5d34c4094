package lease

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"leasing/pkg/log"
)

// BreakerProvider wraps a Provider with a circuit breaker so a sustained
// run of ProviderUnavailable failures stops hammering a downed backend
// and fails fast instead, giving Manager.Acquire's poll loop a cheap
// no-op to retry against until the breaker half-opens again.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps inner with a breaker that opens after 5
// consecutive ProviderUnavailable failures and probes again after 30s.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        "lease-" + inner.Kind(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Get("lease").Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerProvider) Kind() string { return b.inner.Kind() }

func (b *BreakerProvider) Acquire(ctx context.Context, name string, duration time.Duration, metadata Metadata) (*Record, error) {
	var domainErr error
	result, err := b.breaker.Execute(func() (interface{}, error) {
		rec, err := b.inner.Acquire(ctx, name, duration, metadata)
		if err != nil && !IsKind(err, KindProviderUnavailable) {
			domainErr = err
			return rec, nil
		}
		return rec, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, newError(KindProviderUnavailable, name, "", "circuit breaker open", err)
		}
		return nil, err
	}
	if domainErr != nil {
		return nil, domainErr
	}
	rec, _ := result.(*Record)
	return rec, nil
}

func (b *BreakerProvider) Renew(ctx context.Context, name, leaseID string, duration time.Duration) (time.Time, error) {
	var domainErr error
	result, err := b.breaker.Execute(func() (interface{}, error) {
		t, err := b.inner.Renew(ctx, name, leaseID, duration)
		if err != nil && !IsKind(err, KindProviderUnavailable) {
			domainErr = err
			return t, nil
		}
		return t, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return time.Time{}, newError(KindProviderUnavailable, name, leaseID, "circuit breaker open", err)
		}
		return time.Time{}, err
	}
	if domainErr != nil {
		return time.Time{}, domainErr
	}
	t, _ := result.(time.Time)
	return t, nil
}

func (b *BreakerProvider) Release(ctx context.Context, name, leaseID string) error {
	return b.inner.Release(ctx, name, leaseID)
}

func (b *BreakerProvider) Break(ctx context.Context, name string) error {
	return b.inner.Break(ctx, name)
}
