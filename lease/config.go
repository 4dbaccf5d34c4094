package lease

import (
	"time"
)

// ManagerConfig configures a Manager (the acquisition manager plus the
// defaults every Handle's renewal engine inherits). Recognized options
// mirror spec.md §6 exactly.
type ManagerConfig struct {
	// DefaultLeaseDuration is D, the duration requested from the backend.
	DefaultLeaseDuration time.Duration

	// AutoRenew enables the background renewal engine for handles used
	// past their requested duration. Defaults to true.
	AutoRenew bool

	// AutoRenewInterval is I, the nominal wait between renewal attempts.
	// Auto-derived as 2D/3 when zero.
	AutoRenewInterval time.Duration

	// AutoRenewRetryInterval is R, the base delay between renewal retries.
	AutoRenewRetryInterval time.Duration

	// AutoRenewMaxRetries is M, attempts per renewal window before Lost.
	AutoRenewMaxRetries int

	// AutoRenewSafetyFraction is S, in [0.5, 0.95].
	AutoRenewSafetyFraction float64

	// AcquireTimeout is T. Zero means try_acquire semantics: a single
	// attempt, returning immediately instead of polling. A negative value
	// (use AcquireUnbounded) means poll indefinitely, subject to the
	// safety-valve attempt cap. A positive value bounds the poll loop to
	// that wall-clock duration.
	AcquireTimeout time.Duration

	// AcquireRetryInterval is the sleep between acquisition polls when the
	// lease is held by another.
	AcquireRetryInterval time.Duration

	// Metadata is attached to every acquire call made through this manager.
	Metadata Metadata

	// Rendezvous, when set, scopes Acquire's polling to the instance
	// rendezvous-hashing prefers for this lease name, skipping the
	// provider round trip on poll cycles where this node is not preferred.
	// A polling-efficiency hint only; the backend remains the sole source
	// of truth for ownership. Unset by default, which is spec.md's plain
	// opportunistic polling.
	Rendezvous *RendezvousSet
}

// AcquireUnbounded is the sentinel for AcquireTimeout meaning "poll
// indefinitely, subject to the safety-valve attempt cap." DefaultManagerConfig
// uses it; a literal zero value instead means try_acquire semantics (§8:
// "Acquisition with timeout = 0: equivalent to try_acquire").
const AcquireUnbounded time.Duration = -1

// acquisitionSafetyValveAttempts bounds total acquisition attempts even
// when AcquireTimeout is unbounded, so a permanently-down backend cannot
// spin the poll loop forever.
const acquisitionSafetyValveAttempts = 10_000

// nativeLeaseMinDuration and nativeLeaseMaxDuration bound the
// store-imposed native-lease duration range (§4.2).
const (
	nativeLeaseMinDuration = 15 * time.Second
	nativeLeaseMaxDuration = 60 * time.Second
)

// DefaultManagerConfig returns spec.md's defaults: D=60s, auto-renew on,
// I auto-derived to 2D/3=40s, R=5s, M=3, S=0.9, unbounded acquire timeout,
// 5s acquire retry interval.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultLeaseDuration:    60 * time.Second,
		AutoRenew:               true,
		AutoRenewRetryInterval:  5 * time.Second,
		AutoRenewMaxRetries:     3,
		AutoRenewSafetyFraction: 0.9,
		AcquireTimeout:          AcquireUnbounded,
		AcquireRetryInterval:    5 * time.Second,
	}
}

// normalize fills auto-derived fields and returns a value ready for
// validate(). It does not mutate the receiver.
func (c ManagerConfig) normalize() ManagerConfig {
	out := c
	if out.DefaultLeaseDuration <= 0 {
		out.DefaultLeaseDuration = 60 * time.Second
	}
	if out.AutoRenewInterval <= 0 {
		out.AutoRenewInterval = out.DefaultLeaseDuration * 2 / 3
	}
	if out.AutoRenewRetryInterval <= 0 {
		out.AutoRenewRetryInterval = 5 * time.Second
	}
	if out.AutoRenewSafetyFraction <= 0 {
		out.AutoRenewSafetyFraction = 0.9
	}
	if out.AcquireRetryInterval <= 0 {
		out.AcquireRetryInterval = 5 * time.Second
	}
	return out
}

// validate enforces the Configuration-error boundaries from spec.md §7.
// It must run before any I/O, at construction.
//
// It deliberately does NOT reject configurations whose retry horizon
// (I + R*(2^M-1)) exceeds the safety window S*D: spec.md's own defaults
// (D=60s, I=40s, R=5s, M=3, S=0.9 -> horizon 35s, I+horizon=75s >= S*D=54s)
// fail that literal rule, so enforcing it at construction would reject the
// spec's own canonical configuration. Whether retries actually overrun the
// safety window is instead a runtime property of a given renewal window
// (see the engine's per-attempt check in engine.go) — a slow run emits Lost
// when it happens rather than being refused up front.
func (c ManagerConfig) validate() error {
	if c.DefaultLeaseDuration <= 0 {
		return newError(KindConfiguration, "", "", "default_lease_duration must be > 0", nil)
	}
	if c.AutoRenewInterval <= 0 || c.AutoRenewInterval >= c.DefaultLeaseDuration {
		return newError(KindConfiguration, "", "", "auto_renew_interval must be > 0 and < default_lease_duration", nil)
	}
	if c.AutoRenewSafetyFraction < 0.5 || c.AutoRenewSafetyFraction > 0.95 {
		return newError(KindConfiguration, "", "", "auto_renew_safety_threshold must be in [0.5, 0.95]", nil)
	}
	if c.AutoRenewMaxRetries < 0 {
		return newError(KindConfiguration, "", "", "auto_renew_max_retries must be >= 0", nil)
	}
	if c.AutoRenewRetryInterval <= 0 {
		return newError(KindConfiguration, "", "", "auto_renew_retry_interval must be > 0", nil)
	}
	return nil
}

// safetyWindow is S*D, the wall-clock budget since the last successful
// renewal past which the engine gives up and emits Lost (§4.6 steps 2-3).
func (c ManagerConfig) safetyWindow() time.Duration {
	return time.Duration(c.AutoRenewSafetyFraction * float64(c.DefaultLeaseDuration))
}

// retryHorizon computes R*(2^M - 1), the total time consumed by M
// exponential-backoff retries starting at base R.
func retryHorizon(r time.Duration, m int) time.Duration {
	if m <= 0 {
		return 0
	}
	total := time.Duration(0)
	step := r
	for i := 0; i < m; i++ {
		total += step
		step *= 2
	}
	return total
}

// clampNativeLeaseDuration enforces the 15-60s range the native-lease
// backend's store imposes (§4.2, boundary behavior in §8).
func clampNativeLeaseDuration(d time.Duration) time.Duration {
	if d < nativeLeaseMinDuration {
		return nativeLeaseMinDuration
	}
	if d > nativeLeaseMaxDuration {
		return nativeLeaseMaxDuration
	}
	return d
}
