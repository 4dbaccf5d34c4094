// Package metrics hosts the observability signals specified for the lease
// subsystem (C8): acquisition/renewal counters, duration histograms, and a
// gauge of currently-held leases. The teacher depends on
// github.com/prometheus/client_golang transitively through gin-metrics; it
// is promoted to a direct dependency here since this library has no HTTP
// server to host gin-metrics' route instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prefix namespaces every metric this package registers.
const Prefix = "leasing_"

var (
	AcquisitionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Prefix + "acquisition_attempts_total",
		Help: "Number of lease acquisition attempts, labeled by provider kind.",
	}, []string{"provider", "lease_name"})

	AcquisitionSuccesses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Prefix + "acquisition_successes_total",
		Help: "Number of successful lease acquisitions.",
	}, []string{"provider", "lease_name"})

	RenewalAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Prefix + "renewal_attempts_total",
		Help: "Number of renewal attempts made by the renewal engine.",
	}, []string{"provider", "lease_name"})

	RenewalFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Prefix + "renewal_failures_total",
		Help: "Number of renewal attempts that failed.",
	}, []string{"provider", "lease_name"})

	LeasesLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Prefix + "leases_lost_total",
		Help: "Number of leases that transitioned to the Lost state.",
	}, []string{"provider", "lease_name", "reason"})

	AcquisitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    Prefix + "acquisition_duration_seconds",
		Help:    "Wall-clock time spent in the acquisition poll loop before success, timeout, or cancellation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "lease_name", "outcome"})

	RenewalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    Prefix + "renewal_duration_seconds",
		Help:    "Wall-clock time spent in a single provider Renew call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "lease_name"})

	TimeSinceLastRenewalAtLoss = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    Prefix + "time_since_last_renewal_at_loss_seconds",
		Help:    "time_since_last_successful_renewal observed at the moment a Lost event is emitted.",
		Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
	}, []string{"provider", "lease_name"})

	RetryAttemptsPerRenewal = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    Prefix + "retry_attempts_per_renewal",
		Help:    "Number of retry attempts consumed by a single renewal window.",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	}, []string{"provider", "lease_name"})

	HeldLeases = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: Prefix + "held_leases",
		Help: "Count of leases currently held (state == Acquired) by this process.",
	})
)

// Register adds every collector in this package to reg. Callers own the
// registry's lifecycle; tests typically pass a fresh prometheus.NewRegistry().
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		AcquisitionAttempts,
		AcquisitionSuccesses,
		RenewalAttempts,
		RenewalFailures,
		LeasesLost,
		AcquisitionDuration,
		RenewalDuration,
		TimeSinceLastRenewalAtLoss,
		RetryAttemptsPerRenewal,
		HeldLeases,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
