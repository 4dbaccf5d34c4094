package lease

import (
	"context"
	"time"
)

// Provider is the contract every backend implements (C1): four operations
// over a namespace of leases. Implementations must be stateless between
// calls — all state lives in the backend — and safe for concurrent use by
// every Handle that shares them, matching how the teacher shares a single
// *redis.Client across every session's lease.
type Provider interface {
	// Acquire attempts to obtain the lease. On success it returns a Record.
	// On "held by another" it returns (nil, nil) — not an error; callers
	// distinguish this from failure by the nil record. It fails with a
	// *Error of kind KindProviderUnavailable on I/O or auth error.
	Acquire(ctx context.Context, name string, duration time.Duration, metadata Metadata) (*Record, error)

	// Renew extends an existing lease. It fails with KindLost if the
	// stored lease id differs from leaseID or the record is gone, and with
	// KindRenewal on transient I/O.
	Renew(ctx context.Context, name, leaseID string, duration time.Duration) (time.Time, error)

	// Release relinquishes the lease. Idempotent: a missing or mismatched
	// record is not an error.
	Release(ctx context.Context, name, leaseID string) error

	// Break forcibly ends whatever lease is currently active on name,
	// regardless of holder. Administrative use only.
	Break(ctx context.Context, name string) error

	// Kind identifies the backend for logging, metrics, and span tags.
	Kind() string
}
