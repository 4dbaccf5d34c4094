package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noAutoRenewConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.AutoRenew = false
	return cfg.normalize()
}

func TestHandle_RenewOnceUpdatesExpiry(t *testing.T) {
	p := newFakeProvider()
	m, err := NewManager(p, noAutoRenewConfig())
	require.NoError(t, err)

	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)

	before := h.ExpiresAt()
	p.queueRenew(before.Add(time.Hour), nil)
	require.NoError(t, h.RenewOnce(t.Context()))
	assert.True(t, h.ExpiresAt().After(before))
}

func TestHandle_RenewOnceAfterLostFails(t *testing.T) {
	p := newFakeProvider()
	m, err := NewManager(p, noAutoRenewConfig())
	require.NoError(t, err)

	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)

	h.markLost(nil)
	err = h.RenewOnce(t.Context())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLost))
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	m, err := NewManager(p, noAutoRenewConfig())
	require.NoError(t, err)

	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)

	require.NoError(t, h.Release(t.Context()))
	require.NoError(t, h.Release(t.Context()))
	assert.Equal(t, StateReleased, h.State())
	assert.Equal(t, 1, p.releaseCalls)
}

func TestHandle_ReleaseAfterLostSkipsProviderCall(t *testing.T) {
	p := newFakeProvider()
	m, err := NewManager(p, noAutoRenewConfig())
	require.NoError(t, err)

	h, err := m.TryAcquire(t.Context(), "checkout")
	require.NoError(t, err)

	h.markLost(nil)
	require.NoError(t, h.Release(t.Context()))
	assert.Equal(t, 0, p.releaseCalls)
}
