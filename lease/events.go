package lease

import (
	"time"

	"leasing/pkg/log"
)

// EventType enumerates the notifications a Handle's renewal engine emits,
// mirroring the teacher's LeaseEventType split between transitions a
// caller can react to.
type EventType int

const (
	EventRenewed EventType = iota
	EventRenewalFailed
	EventLost
)

func (t EventType) String() string {
	switch t {
	case EventRenewed:
		return "renewed"
	case EventRenewalFailed:
		return "renewal_failed"
	case EventLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Event is delivered to every Subscriber registered on a Handle.
type Event struct {
	Type      EventType
	LeaseName string
	LeaseID   string
	At        time.Time

	// ExpiresAt is populated on EventRenewed.
	ExpiresAt time.Time

	// RenewalCount is populated on EventRenewed: the handle's total
	// successful-renewal count as of this event (§4.5 payload).
	RenewalCount int

	// Attempt is populated on EventRenewalFailed: the 1-based count of
	// consecutive failed attempts, including this one. It is left zero on
	// EventLost.
	Attempt int

	// WillRetry is populated on EventRenewalFailed: whether the engine will
	// make another attempt after this failure, or has exhausted its
	// retries (§4.6 step 6).
	WillRetry bool

	// Err carries the failure behind EventRenewalFailed or EventLost.
	Err error
}

// Subscriber receives lease lifecycle events. Implementations must not
// block: dispatch happens on the renewal engine's own goroutine.
type Subscriber func(Event)

// dispatcher fans an Event out to every registered Subscriber, recovering
// from a panicking subscriber so one bad listener cannot take down the
// renewal loop.
type dispatcher struct {
	subscribers []Subscriber
}

func (d *dispatcher) subscribe(s Subscriber) {
	d.subscribers = append(d.subscribers, s)
}

func (d *dispatcher) emit(ev Event) {
	for _, s := range d.subscribers {
		s := s
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Get("lease").Errorf("subscriber panic on %s event for lease %s: %v", ev.Type, ev.LeaseName, r)
				}
			}()
			s(ev)
		}()
	}
}
