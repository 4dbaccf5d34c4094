package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	cfg := ManagerConfig{
		DefaultLeaseDuration:    10 * time.Second,
		AutoRenewInterval:       10 * time.Second,
		AutoRenewRetryInterval:  5 * time.Second,
		AutoRenewMaxRetries:     3,
		AutoRenewSafetyFraction: 0.9,
	}
	_, err := NewManager(newFakeProvider(), cfg)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfiguration))
}

func TestManager_TryAcquireSuccess(t *testing.T) {
	p := newFakeProvider()
	m, err := NewManager(p, DefaultManagerConfig())
	require.NoError(t, err)

	h, err := m.TryAcquire(context.Background(), "checkout")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.IsHeld())
	assert.NoError(t, h.Release(context.Background()))
}

func TestManager_TryAcquireConflictReturnsNilNil(t *testing.T) {
	p := newFakeProvider()
	p.queueAcquire(nil, nil)
	cfg := DefaultManagerConfig()
	cfg.AutoRenew = false
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	h, err := m.TryAcquire(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestManager_AcquirePollsUntilHeld(t *testing.T) {
	p := newFakeProvider()
	p.queueAcquire(nil, nil)
	p.queueAcquire(nil, nil)

	cfg := DefaultManagerConfig()
	cfg.AutoRenew = false
	cfg.AcquireRetryInterval = 5 * time.Millisecond
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := m.Acquire(ctx, "checkout")
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestManager_AcquireRespectsTimeout(t *testing.T) {
	p := newFakeProvider()
	for i := 0; i < 1000; i++ {
		p.queueAcquire(nil, nil)
	}

	cfg := DefaultManagerConfig()
	cfg.AutoRenew = false
	cfg.AcquireRetryInterval = 5 * time.Millisecond
	cfg.AcquireTimeout = 30 * time.Millisecond
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "checkout")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAcquisition))
}

func TestManager_AcquireRespectsContextCancellation(t *testing.T) {
	p := newFakeProvider()
	for i := 0; i < 1000; i++ {
		p.queueAcquire(nil, nil)
	}

	cfg := DefaultManagerConfig()
	cfg.AutoRenew = false
	cfg.AcquireRetryInterval = 5 * time.Millisecond
	m, err := NewManager(p, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, "checkout")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAcquisition))
}
