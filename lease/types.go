// Package lease implements a distributed lease primitive: time-bound
// exclusive ownership of a named resource coordinated through a pluggable
// backend Provider (native-lease, optimistic-concurrency, or atomic-KV).
//
// The package is organized the way the teacher's service/lease package was:
// types.go for shared state, manager.go for the top-level client surface
// and acquisition polling, engine.go for the background renewal loop, and
// one backend_*.go per Provider implementation.
package lease

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is the opaque client-supplied key/value map attached to a lease
// record (e.g. holder identity, region).
type Metadata map[string]string

// Clone returns a defensive copy so a Handle never aliases caller-owned maps.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record is the authoritative lease state as stored by a backend.
type Record struct {
	LeaseID    string
	ExpiresAt  time.Time
	Metadata   Metadata
	AcquiredAt time.Time
}

// State is the lease handle's lifecycle state (§3).
type State int

const (
	// StateAcquired is the only state in which is_held() can return true.
	StateAcquired State = iota
	StateReleasing
	StateReleased
	StateLost
)

func (s State) String() string {
	switch s {
	case StateAcquired:
		return "acquired"
	case StateReleasing:
		return "releasing"
	case StateReleased:
		return "released"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// newFencingToken mints a random 128-bit fencing token. The atomic-KV and
// OCC backends store it as their lease id; the native-lease backend passes
// it to the store as the proposed lease id, which the store then uses as
// the lease token.
func newFencingToken() string {
	return uuid.New().String()
}
