package lease

import (
	"context"
	"sync"
	"time"
)

// fakeProvider is an in-memory Provider double for exercising Manager and
// the renewal engine without a real backend. Renew/Acquire behavior is
// driven by queues of canned responses so a test can script exact
// sequences (e.g. two failures then a success).
type fakeProvider struct {
	mu sync.Mutex

	acquireResponses []acquireResponse
	renewResponses   []renewResponse
	releaseCalls     int
	releaseErr       error

	held map[string]*Record
}

type acquireResponse struct {
	rec *Record
	err error
}

type renewResponse struct {
	expiresAt time.Time
	err       error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{held: make(map[string]*Record)}
}

func (f *fakeProvider) Kind() string { return "fake" }

func (f *fakeProvider) queueAcquire(rec *Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireResponses = append(f.acquireResponses, acquireResponse{rec: rec, err: err})
}

func (f *fakeProvider) queueRenew(expiresAt time.Time, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewResponses = append(f.renewResponses, renewResponse{expiresAt: expiresAt, err: err})
}

func (f *fakeProvider) Acquire(ctx context.Context, name string, duration time.Duration, metadata Metadata) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acquireResponses) == 0 {
		rec := &Record{LeaseID: "fake-token", ExpiresAt: time.Now().Add(duration), Metadata: metadata.Clone(), AcquiredAt: time.Now()}
		f.held[name] = rec
		return rec, nil
	}
	resp := f.acquireResponses[0]
	f.acquireResponses = f.acquireResponses[1:]
	if resp.err == nil && resp.rec != nil {
		f.held[name] = resp.rec
	}
	return resp.rec, resp.err
}

func (f *fakeProvider) Renew(ctx context.Context, name, leaseID string, duration time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.renewResponses) == 0 {
		return time.Now().Add(duration), nil
	}
	resp := f.renewResponses[0]
	f.renewResponses = f.renewResponses[1:]
	return resp.expiresAt, resp.err
}

func (f *fakeProvider) Release(ctx context.Context, name, leaseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	delete(f.held, name)
	return f.releaseErr
}

func (f *fakeProvider) Break(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, name)
	return nil
}
