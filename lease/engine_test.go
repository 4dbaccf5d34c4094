package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() ManagerConfig {
	return ManagerConfig{
		DefaultLeaseDuration:    200 * time.Millisecond,
		AutoRenew:               true,
		AutoRenewInterval:       30 * time.Millisecond,
		AutoRenewRetryInterval:  10 * time.Millisecond,
		AutoRenewMaxRetries:     2,
		AutoRenewSafetyFraction: 0.9,
		AcquireRetryInterval:    5 * time.Millisecond,
	}.normalize()
}

func TestEngine_RenewsSuccessfullyAndEmitsEvent(t *testing.T) {
	p := newFakeProvider()
	cfg := testEngineConfig()
	require.NoError(t, cfg.validate())
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	events := make(chan Event, 16)
	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)
	h.Subscribe(func(ev Event) { events <- ev })

	select {
	case ev := <-events:
		assert.Equal(t, EventRenewed, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for renewed event")
	}

	assert.NoError(t, h.Release(t.Context()))
}

func TestEngine_RetriesThenRecovers(t *testing.T) {
	p := newFakeProvider()
	p.queueRenew(time.Time{}, NewRenewalError("checkout", "", "transient"))
	p.queueRenew(time.Time{}, NewRenewalError("checkout", "", "transient"))
	// third attempt falls through to the default success behavior.

	cfg := testEngineConfig()
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	events := make(chan Event, 16)
	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)
	h.Subscribe(func(ev Event) { events <- ev })

	var sawFailure, sawRenewed bool
	deadline := time.After(3 * time.Second)
	for !sawRenewed {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventRenewalFailed:
				sawFailure = true
			case EventRenewed:
				sawRenewed = true
			case EventLost:
				t.Fatal("lease was lost but should have recovered")
			}
		case <-deadline:
			t.Fatal("timed out waiting for recovery")
		}
	}
	assert.True(t, sawFailure)
	assert.NoError(t, h.Release(t.Context()))
}

func TestEngine_ExhaustsRetriesAndMarksLost(t *testing.T) {
	p := newFakeProvider()
	for i := 0; i < 10; i++ {
		p.queueRenew(time.Time{}, NewRenewalError("checkout", "", "persistent failure"))
	}

	cfg := testEngineConfig()
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	events := make(chan Event, 16)
	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)
	h.Subscribe(func(ev Event) { events <- ev })

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventLost {
				assert.Equal(t, StateLost, h.State())
				assert.False(t, h.IsHeld())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for lost event")
		}
	}
}
