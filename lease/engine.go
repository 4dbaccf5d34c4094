package lease

import (
	"context"
	"time"

	"leasing/pkg/log"
	"leasing/pkg/metrics"
	"leasing/pkg/tracing"
)

// startEngine launches the background renewal loop for h. Grounded on the
// teacher's renewalLoop/renewLease/markLeaseUncertain(Locked): a ticker at
// the nominal interval, with exponential-backoff retries on failure and a
// transition to Lost when the retry budget is exhausted.
func (h *Handle) startEngine() {
	ctx, cancel := context.WithCancel(context.Background())
	h.engineCancel = cancel
	h.engineDone = make(chan struct{})
	go h.runEngine(ctx)
}

func (h *Handle) stopEngine() {
	if h.engineCancel == nil {
		return
	}
	h.engineCancel()
	<-h.engineDone
}

func (h *Handle) runEngine(ctx context.Context) {
	defer close(h.engineDone)

	timer := time.NewTimer(h.cfg.AutoRenewInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if h.State() != StateAcquired {
				return
			}
			if h.renewWithRetries(ctx) {
				timer.Reset(h.cfg.AutoRenewInterval)
			} else {
				return
			}
		}
	}
}

// renewWithRetries performs one renewal window, implementing §4.6's loop
// steps 2-7: on every attempt (initial and retries alike) it first checks
// whether time_since_last_successful_renewal has already reached the
// safety window and gives up as Lost before touching the provider, then
// attempts renew_once, then retries at exponential backoff (clamped to
// whatever remains of the safety window) up to AutoRenewMaxRetries times.
// Returns true if the lease is still held at the end of the window, false
// if it transitioned to Lost (terminal — the caller must stop the engine).
// RenewOnce owns all Renewed/RenewalFailed bookkeeping and event emission;
// this loop only owns the retry/backoff/safety-window policy around it.
func (h *Handle) renewWithRetries(ctx context.Context) bool {
	safetyWindow := h.cfg.safetyWindow()

	for {
		if h.State() != StateAcquired {
			return false
		}

		elapsed := h.now().Sub(h.LastSuccessfulRenewal())
		if elapsed >= safetyWindow {
			metrics.TimeSinceLastRenewalAtLoss.WithLabelValues(h.provider.Kind(), h.name).Observe(elapsed.Seconds())
			h.markLost(newError(KindLost, h.name, h.LeaseID(), "time since last successful renewal reached the safety window", nil))
			return false
		}

		attemptsBefore := h.ConsecutiveRenewalFailures()
		spanCtx, span := tracing.StartSpan(ctx, "renew", h.provider.Kind(), h.name, h.LeaseID())
		err := h.RenewOnce(spanCtx)
		if err == nil {
			tracing.EndSpan(span, tracing.OutcomeSuccess, nil)
			metrics.RetryAttemptsPerRenewal.WithLabelValues(h.provider.Kind(), h.name).Observe(float64(attemptsBefore))
			return true
		}

		if IsKind(err, KindLost) {
			tracing.EndSpan(span, tracing.OutcomeLost, err)
			metrics.TimeSinceLastRenewalAtLoss.WithLabelValues(h.provider.Kind(), h.name).Observe(elapsed.Seconds())
			// markLost already called by RenewOnce.
			return false
		}
		tracing.EndSpan(span, tracing.OutcomeFailure, err)

		attempt := h.ConsecutiveRenewalFailures()
		log.Get("lease").Warnf("renewal attempt %d/%d failed for lease %s: %v", attempt, h.cfg.AutoRenewMaxRetries, h.name, err)

		if attempt > h.cfg.AutoRenewMaxRetries {
			metrics.TimeSinceLastRenewalAtLoss.WithLabelValues(h.provider.Kind(), h.name).Observe(h.now().Sub(h.LastSuccessfulRenewal()).Seconds())
			h.markLost(err)
			return false
		}

		backoff := h.cfg.AutoRenewRetryInterval << uint(attempt-1)
		if remaining := safetyWindow - h.now().Sub(h.LastSuccessfulRenewal()); remaining < backoff {
			backoff = remaining
			if backoff < 0 {
				backoff = 0
			}
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
}
