package lease

import (
	"context"
	"sync"
	"time"

	"leasing/pkg/log"
	"leasing/pkg/metrics"
)

// Handle is a held lease: the fencing token, the backend used to renew and
// release it, and — when auto-renew is enabled — the background engine
// keeping it alive. Mirrors the teacher's per-session bookkeeping in
// leaseManager, but scoped to a single acquisition instead of a whole map.
type Handle struct {
	name     string
	provider Provider
	cfg      ManagerConfig
	now      func() time.Time

	mu        sync.Mutex
	state     State
	leaseID   string
	expiresAt time.Time
	metadata  Metadata

	// renewalCount, lastSuccessfulRenewal, and consecutiveRenewalFailures
	// are the §3-mandated renewal bookkeeping fields. RenewOnce maintains
	// them on every call, whether driven by the background engine or by a
	// caller managing its own renewal cadence with AutoRenew disabled.
	renewalCount               int
	lastSuccessfulRenewal      time.Time
	consecutiveRenewalFailures int

	dispatcher dispatcher

	engineCancel context.CancelFunc
	engineDone   chan struct{}
}

func newHandle(name string, provider Provider, cfg ManagerConfig, rec *Record, now func() time.Time) *Handle {
	if now == nil {
		now = time.Now
	}
	h := &Handle{
		name:                  name,
		provider:              provider,
		cfg:                   cfg,
		now:                   now,
		state:                 StateAcquired,
		leaseID:               rec.LeaseID,
		expiresAt:             rec.ExpiresAt,
		metadata:              rec.Metadata.Clone(),
		lastSuccessfulRenewal: rec.AcquiredAt,
	}
	metrics.HeldLeases.Inc()
	if cfg.AutoRenew {
		h.startEngine()
	}
	return h
}

// Name returns the lease name this handle holds.
func (h *Handle) Name() string { return h.name }

// LeaseID returns the fencing token in play. Safe to read concurrently
// with renewal; it is fixed at acquisition and does not change for the
// handle's life.
func (h *Handle) LeaseID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaseID
}

// ExpiresAt returns the last known expiry. Advisory only: the
// authoritative deadline lives in the backend.
func (h *Handle) ExpiresAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expiresAt
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsHeld reports whether the handle is in StateAcquired. Per spec this is
// the only state in which the caller may safely act as the exclusive owner.
func (h *Handle) IsHeld() bool {
	return h.State() == StateAcquired
}

// Subscribe registers a listener for Renewed/RenewalFailed/Lost events.
// Must be called before the engine would emit; late subscribers miss
// earlier events, matching the teacher's fire-and-forget event model.
func (h *Handle) Subscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher.subscribe(s)
}

// RenewalCount returns the handle's total successful-renewal count (§3).
func (h *Handle) RenewalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renewalCount
}

// LastSuccessfulRenewal returns the timestamp of the last successful
// renewal, or the acquisition time if none has happened yet (§3). The
// engine's safety-window check is measured from this, never from the
// original acquisition time once at least one renewal has succeeded.
func (h *Handle) LastSuccessfulRenewal() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSuccessfulRenewal
}

// ConsecutiveRenewalFailures returns the number of renewal failures since
// the last success (§3). Reset to zero by every successful RenewOnce.
func (h *Handle) ConsecutiveRenewalFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveRenewalFailures
}

// RenewOnce performs a single synchronous renewal attempt, independent of
// the background engine. Callers managing their own renewal cadence use
// this directly with AutoRenew disabled. It maintains the same renewal
// bookkeeping (renewal_count, last_successful_renewal,
// consecutive_renewal_failures) and emits the same Renewed/RenewalFailed
// events the background engine relies on (§4.5), so a manually-driven
// handle behaves identically from a subscriber's point of view.
func (h *Handle) RenewOnce(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateAcquired {
		name, id := h.name, h.leaseID
		h.mu.Unlock()
		return newError(KindLost, name, id, "cannot renew a handle that is not held", nil)
	}
	leaseID := h.leaseID
	h.mu.Unlock()

	start := h.now()
	newExpiry, err := h.provider.Renew(ctx, h.name, leaseID, h.cfg.DefaultLeaseDuration)
	metrics.RenewalDuration.WithLabelValues(h.provider.Kind(), h.name).Observe(h.now().Sub(start).Seconds())
	metrics.RenewalAttempts.WithLabelValues(h.provider.Kind(), h.name).Inc()

	if err != nil {
		metrics.RenewalFailures.WithLabelValues(h.provider.Kind(), h.name).Inc()
		if IsKind(err, KindLost) {
			h.markLost(err)
			return err
		}

		h.mu.Lock()
		h.consecutiveRenewalFailures++
		attempt := h.consecutiveRenewalFailures
		h.mu.Unlock()

		h.dispatcher.emit(Event{
			Type:      EventRenewalFailed,
			LeaseName: h.name,
			LeaseID:   leaseID,
			At:        h.now(),
			Attempt:   attempt,
			WillRetry: attempt <= h.cfg.AutoRenewMaxRetries,
			Err:       err,
		})
		return err
	}

	h.mu.Lock()
	h.expiresAt = newExpiry
	h.renewalCount++
	h.consecutiveRenewalFailures = 0
	h.lastSuccessfulRenewal = h.now()
	count := h.renewalCount
	h.mu.Unlock()

	h.dispatcher.emit(Event{
		Type:         EventRenewed,
		LeaseName:    h.name,
		LeaseID:      leaseID,
		At:           h.now(),
		ExpiresAt:    newExpiry,
		RenewalCount: count,
	})
	return nil
}

// Release relinquishes the lease and stops the renewal engine. Idempotent:
// calling it more than once, or after the lease was already lost, is a
// no-op returning nil.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateReleased || h.state == StateReleasing {
		h.mu.Unlock()
		return nil
	}
	if h.state == StateLost {
		h.mu.Unlock()
		h.stopEngine()
		return nil
	}
	h.state = StateReleasing
	leaseID := h.leaseID
	h.mu.Unlock()

	h.stopEngine()

	err := h.provider.Release(ctx, h.name, leaseID)

	h.mu.Lock()
	h.state = StateReleased
	h.mu.Unlock()
	metrics.HeldLeases.Dec()

	if err != nil {
		log.Get("lease").Warnf("release of lease %s failed, treating as released: %v", h.name, err)
		return nil
	}
	return nil
}

func (h *Handle) markLost(cause error) {
	h.mu.Lock()
	if h.state != StateAcquired {
		h.mu.Unlock()
		return
	}
	h.state = StateLost
	h.mu.Unlock()

	metrics.HeldLeases.Dec()
	reason := "unknown"
	if cause != nil {
		reason = string(errorKind(cause))
	}
	metrics.LeasesLost.WithLabelValues(h.provider.Kind(), h.name, reason).Inc()
	h.dispatcher.emit(Event{
		Type:      EventLost,
		LeaseName: h.name,
		LeaseID:   h.LeaseID(),
		At:        h.now(),
		Err:       cause,
	})
}
