package lease

import "fmt"

// Kind enumerates the error taxonomy from the error-handling design:
// Acquisition, Conflict, Renewal, Lost, ProviderUnavailable, Configuration.
type Kind string

const (
	// KindAcquisition means the acquisition manager could not obtain a
	// lease within the allowed timeout or safety-valve attempt cap.
	KindAcquisition Kind = "acquisition"

	// KindConflict is the "held by another" signal. It is taxonomy-only:
	// no *Error of this kind is ever constructed. Conflict is instead
	// signaled by TryAcquire returning (nil, nil), so callers can tell
	// "someone else holds it" apart from an actual failure without an
	// errors.As/Is check. Kept in the enum to document the domain model's
	// full error space.
	KindConflict Kind = "conflict"

	// KindRenewal is a transient renewal failure (I/O, timeout), consumed
	// by the renewal engine's retry policy.
	KindRenewal Kind = "renewal"

	// KindLost means the lease is definitively no longer held.
	KindLost Kind = "lost"

	// KindProviderUnavailable means the backend is unreachable, or
	// authentication/initialization failed.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindConfiguration means the supplied options are invalid; surfaced
	// at construction time, fail-fast.
	KindConfiguration Kind = "configuration"
)

// Error is the typed error every public lease operation returns for a
// domain-level failure. It always carries the lease name and, where
// applicable, the fencing token in play at the time of failure.
type Error struct {
	Kind      Kind
	LeaseName string
	LeaseID   string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.LeaseID != "" {
		return fmt.Sprintf("lease %s: %s (lease_id=%s): %s", e.Kind, e.LeaseName, e.LeaseID, e.Message)
	}
	return fmt.Sprintf("lease %s: %s: %s", e.Kind, e.LeaseName, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is checks against a sentinel *Error that carries only a
// Kind (and optionally a LeaseName): it matches when the kinds are equal
// and, if the sentinel names a lease, the lease names are equal too.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.LeaseName != "" && other.LeaseName != e.LeaseName {
		return false
	}
	return other.Kind == e.Kind
}

func newError(kind Kind, leaseName, leaseID, message string, cause error) *Error {
	return &Error{Kind: kind, LeaseName: leaseName, LeaseID: leaseID, Message: message, Err: cause}
}

// NewProviderUnavailableError builds a KindProviderUnavailable error for
// use by test doubles in leasetest, which cannot construct an *Error
// directly since newError is unexported.
func NewProviderUnavailableError(leaseName, message string) *Error {
	return newError(KindProviderUnavailable, leaseName, "", message, nil)
}

// NewRenewalError builds a KindRenewal error for use by test doubles in
// leasetest.
func NewRenewalError(leaseName, leaseID, message string) *Error {
	return newError(KindRenewal, leaseName, leaseID, message, nil)
}

// errorKind extracts the Kind of err if it is, or wraps, a *Error.
// Returns the empty Kind otherwise.
func errorKind(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var le *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			le = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return le != nil && le.Kind == k
}
