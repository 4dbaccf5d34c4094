package lease

import (
	"context"
	"time"

	"leasing/pkg/log"
	"leasing/pkg/metrics"
	"leasing/pkg/tracing"
)

// Manager is the top-level client surface (C7): it validates configuration
// once at construction, then exposes Acquire (blocking poll until held or
// timeout) and TryAcquire (single non-blocking attempt) over a Provider.
type Manager struct {
	provider Provider
	cfg      ManagerConfig
	now      func() time.Time
}

// NewManager validates cfg and returns a Manager bound to provider.
// Validation runs at construction, fail-fast, per spec.md §7 — a bad
// configuration never reaches the I/O path.
func NewManager(provider Provider, cfg ManagerConfig) (*Manager, error) {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if horizon := retryHorizon(cfg.AutoRenewRetryInterval, cfg.AutoRenewMaxRetries); cfg.AutoRenewInterval+horizon >= cfg.safetyWindow() {
		log.Get("lease").Warnf("renewal interval (%s) plus full retry horizon (%s) reaches the safety window (%s): a renewal window that exhausts its retries will emit Lost",
			cfg.AutoRenewInterval, horizon, cfg.safetyWindow())
	}
	return &Manager{provider: provider, cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the manager's time source, for deterministic tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TryAcquire makes a single acquisition attempt. It returns (nil, nil)
// when the lease is currently held by another owner — not an error — so
// callers can distinguish conflict from failure.
func (m *Manager) TryAcquire(ctx context.Context, name string) (*Handle, error) {
	ctx, span := tracing.StartSpan(ctx, "acquire", m.provider.Kind(), name, "")
	defer span.End()

	metrics.AcquisitionAttempts.WithLabelValues(m.provider.Kind(), name).Inc()
	rec, err := m.provider.Acquire(ctx, name, m.cfg.DefaultLeaseDuration, m.cfg.Metadata)
	if err != nil {
		tracing.EndSpan(span, tracing.OutcomeFailure, err)
		return nil, err
	}
	if rec == nil {
		tracing.EndSpan(span, tracing.OutcomeAlreadyHeld, nil)
		return nil, nil
	}

	tracing.EndSpan(span, tracing.OutcomeSuccess, nil)
	metrics.AcquisitionSuccesses.WithLabelValues(m.provider.Kind(), name).Inc()
	return newHandle(name, m.provider, m.cfg, rec, m.now), nil
}

// Acquire polls TryAcquire until the lease is held, ctx is cancelled, the
// configured AcquireTimeout elapses, or the safety-valve attempt cap is
// reached (whichever comes first). The safety valve exists so an
// unbounded timeout against a permanently unreachable backend still
// terminates with a *Error of kind KindAcquisition rather than spinning
// forever.
//
// AcquireTimeout == 0 is try_acquire semantics (§8): a single attempt,
// returned verbatim with no polling loop at all.
func (m *Manager) Acquire(ctx context.Context, name string) (*Handle, error) {
	if m.cfg.AcquireTimeout == 0 {
		return m.tryAcquireOnce(ctx, name)
	}

	start := m.now()
	ctx, cancel := m.boundedContext(ctx)
	defer cancel()

	attempts := 0
	for {
		attempts++

		if !m.shouldAttempt(name) {
			if err := m.waitNextPoll(ctx, start, name); err != nil {
				return nil, err
			}
			continue
		}

		h, err := m.TryAcquire(ctx, name)
		if err != nil {
			if IsKind(err, KindProviderUnavailable) {
				log.Get("lease").Warnf("acquire attempt %d for lease %s: provider unavailable: %v", attempts, name, err)
			} else {
				metrics.AcquisitionDuration.WithLabelValues(m.provider.Kind(), name, tracing.OutcomeFailure).
					Observe(m.now().Sub(start).Seconds())
				return nil, err
			}
		} else if h != nil {
			metrics.AcquisitionDuration.WithLabelValues(m.provider.Kind(), name, tracing.OutcomeSuccess).
				Observe(m.now().Sub(start).Seconds())
			return h, nil
		}

		if attempts >= acquisitionSafetyValveAttempts {
			metrics.AcquisitionDuration.WithLabelValues(m.provider.Kind(), name, tracing.OutcomeTimeout).
				Observe(m.now().Sub(start).Seconds())
			return nil, newError(KindAcquisition, name, "", "exceeded maximum acquisition attempts", nil)
		}

		if err := m.waitNextPoll(ctx, start, name); err != nil {
			return nil, err
		}
	}
}

// tryAcquireOnce implements AcquireTimeout == 0: exactly one attempt, no
// retry loop, whatever TryAcquire returns (including a nil handle on
// conflict) is the final answer.
func (m *Manager) tryAcquireOnce(ctx context.Context, name string) (*Handle, error) {
	start := m.now()
	h, err := m.TryAcquire(ctx, name)
	outcome := tracing.OutcomeSuccess
	switch {
	case err != nil:
		outcome = tracing.OutcomeFailure
	case h == nil:
		outcome = tracing.OutcomeAlreadyHeld
	}
	metrics.AcquisitionDuration.WithLabelValues(m.provider.Kind(), name, outcome).Observe(m.now().Sub(start).Seconds())
	return h, err
}

// shouldAttempt reports whether this poll cycle should spend a round trip
// on provider.Acquire. With no Rendezvous configured it always does
// (spec.md's default opportunistic polling, no fairness). With one
// configured, it skips the round trip on cycles where this node is not
// rendezvous-preferred for name, per SPEC_FULL's polling-efficiency hint —
// the backend remains the sole source of truth for ownership either way.
func (m *Manager) shouldAttempt(name string) bool {
	rs := m.cfg.Rendezvous
	if rs == nil {
		return true
	}
	nodes := rs.Nodes()
	if len(nodes) == 0 {
		return true
	}
	return IsPreferredOwner(rs.NodeID, name, nodes)
}

// waitNextPoll sleeps AcquireRetryInterval before the next poll cycle, or
// returns a KindAcquisition error if ctx ends first.
func (m *Manager) waitNextPoll(ctx context.Context, start time.Time, name string) error {
	select {
	case <-ctx.Done():
		metrics.AcquisitionDuration.WithLabelValues(m.provider.Kind(), name, tracing.OutcomeTimeout).
			Observe(m.now().Sub(start).Seconds())
		if ctx.Err() == context.DeadlineExceeded {
			return newError(KindAcquisition, name, "", "acquisition timed out", ctx.Err())
		}
		return newError(KindAcquisition, name, "", "acquisition cancelled", ctx.Err())
	case <-time.After(m.cfg.AcquireRetryInterval):
		return nil
	}
}

func (m *Manager) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.AcquireTimeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.AcquireTimeout)
}

// Break forcibly ends whatever lease is active on name. Administrative
// use only — it does not stop another process's Handle from believing it
// still holds the lease until its next renewal fails.
func (m *Manager) Break(ctx context.Context, name string) error {
	return m.provider.Break(ctx, name)
}
