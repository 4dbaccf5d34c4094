package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisProvider(t *testing.T) (*RedisProvider, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisProvider(client, "test:"), mr
}

func TestRedisProvider_AcquireThenConflict(t *testing.T) {
	p, _ := newTestRedisProvider(t)
	ctx := context.Background()

	rec, err := p.Acquire(ctx, "checkout", 30*time.Second, Metadata{"owner": "a"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.LeaseID)

	again, err := p.Acquire(ctx, "checkout", 30*time.Second, Metadata{"owner": "b"})
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestRedisProvider_RenewByOwnerSucceeds(t *testing.T) {
	p, mr := newTestRedisProvider(t)
	ctx := context.Background()

	rec, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)

	mr.FastForward(20 * time.Second)
	newExpiry, err := p.Renew(ctx, "checkout", rec.LeaseID, 30*time.Second)
	require.NoError(t, err)
	require.True(t, newExpiry.After(rec.ExpiresAt))
}

func TestRedisProvider_RenewByWrongTokenFailsLost(t *testing.T) {
	p, _ := newTestRedisProvider(t)
	ctx := context.Background()

	_, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)

	_, err = p.Renew(ctx, "checkout", "not-the-real-token", 30*time.Second)
	require.Error(t, err)
	require.True(t, IsKind(err, KindLost))
}

func TestRedisProvider_RenewAfterExpiryFailsLost(t *testing.T) {
	p, mr := newTestRedisProvider(t)
	ctx := context.Background()

	rec, err := p.Acquire(ctx, "checkout", 5*time.Second, nil)
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)
	_, err = p.Renew(ctx, "checkout", rec.LeaseID, 5*time.Second)
	require.Error(t, err)
	require.True(t, IsKind(err, KindLost))
}

func TestRedisProvider_ReleaseIsIdempotent(t *testing.T) {
	p, _ := newTestRedisProvider(t)
	ctx := context.Background()

	rec, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, p.Release(ctx, "checkout", rec.LeaseID))
	require.NoError(t, p.Release(ctx, "checkout", rec.LeaseID))

	// a fresh acquirer should now succeed
	again, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestRedisProvider_BreakForciblyEndsLease(t *testing.T) {
	p, _ := newTestRedisProvider(t)
	ctx := context.Background()

	_, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, p.Break(ctx, "checkout"))

	again, err := p.Acquire(ctx, "checkout", 30*time.Second, nil)
	require.NoError(t, err)
	require.NotNil(t, again)
}
