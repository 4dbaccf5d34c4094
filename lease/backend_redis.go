package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leasing/pkg/config"
)

// redisValue is the JSON payload stored at a lease's Redis key. Grounded
// on the teacher's RedisLeaseValue, extended with the fencing token and
// caller metadata this package's Provider contract requires.
type redisValue struct {
	LeaseID       string            `json:"lease_id"`
	AcquiredAt    time.Time         `json:"acquired_at"`
	LastRenewedAt time.Time         `json:"last_renewed_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (v redisValue) marshal() (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal lease value: %w", err)
	}
	return string(data), nil
}

func parseRedisValue(s string) (redisValue, error) {
	var v redisValue
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return redisValue{}, fmt.Errorf("parse lease value: %w", err)
	}
	return v, nil
}

// renewScript atomically renews a lease key only if the caller still
// holds it, adapted from the teacher's lua_scripts.go to check lease_id
// (a fencing token) instead of an instance-scoped owner_id.
//
// KEYS[1] = lease key
// ARGV[1] = expected lease id
// ARGV[2] = TTL in milliseconds
// ARGV[3] = new lease value (JSON)
// Returns 1 if renewed, 0 if the caller no longer holds the lease.
var renewScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return 0
end
local parsed = cjson.decode(current)
if parsed.lease_id == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
else
  return 0
end
`)

// releaseScript atomically deletes a lease key only if the caller still
// holds it.
//
// KEYS[1] = lease key
// ARGV[1] = expected lease id
// Returns 1 if released, 0 if the caller did not hold it.
var releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return 0
end
local parsed = cjson.decode(current)
if parsed.lease_id == ARGV[1] then
  return redis.call('DEL', KEYS[1])
else
  return 0
end
`)

// RedisProvider implements the atomic-KV strategy (C4): SETNX+TTL for
// acquisition, Lua-scripted compare-and-act for renewal and release.
// Grounded directly on the teacher's service/lease package, its single
// purpose-built backend.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

// NewRedisProvider wraps an already-connected client. Prefix namespaces
// every lease key, mirroring the teacher's "poll:lease:" constant.
func NewRedisProvider(client *redis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = "lease:"
	}
	return &RedisProvider{client: client, prefix: prefix}
}

// NewRedisProviderFromConfig builds a client from cfg.Redis and pings it,
// the same fail-fast connectivity check the teacher's db package performs
// at startup.
func NewRedisProviderFromConfig(ctx context.Context, cfg config.RedisConfig) (*RedisProvider, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, newError(KindConfiguration, "", "", "invalid redis url", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, newError(KindProviderUnavailable, "", "", "redis ping failed", err)
	}
	return NewRedisProvider(client, cfg.Prefix), nil
}

func (p *RedisProvider) key(name string) string {
	return p.prefix + name
}

func (p *RedisProvider) Kind() string { return "redis" }

func (p *RedisProvider) Acquire(ctx context.Context, name string, duration time.Duration, metadata Metadata) (*Record, error) {
	now := time.Now()
	val := redisValue{
		LeaseID:       newFencingToken(),
		AcquiredAt:    now,
		LastRenewedAt: now,
		Metadata:      metadata,
	}
	payload, err := val.marshal()
	if err != nil {
		return nil, newError(KindAcquisition, name, "", "failed to marshal lease value", err)
	}

	ok, err := p.client.SetNX(ctx, p.key(name), payload, duration).Result()
	if err != nil {
		return nil, newError(KindProviderUnavailable, name, "", "redis setnx failed", err)
	}
	if !ok {
		return nil, nil
	}

	return &Record{
		LeaseID:    val.LeaseID,
		ExpiresAt:  now.Add(duration),
		Metadata:   metadata.Clone(),
		AcquiredAt: now,
	}, nil
}

func (p *RedisProvider) Renew(ctx context.Context, name, leaseID string, duration time.Duration) (time.Time, error) {
	current, err := p.client.Get(ctx, p.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, newError(KindLost, name, leaseID, "lease key no longer exists", nil)
		}
		return time.Time{}, newError(KindRenewal, name, leaseID, "redis get failed", err)
	}
	existing, err := parseRedisValue(current)
	if err != nil {
		return time.Time{}, newError(KindRenewal, name, leaseID, "failed to parse stored lease value", err)
	}

	now := time.Now()
	updated := redisValue{
		LeaseID:       leaseID,
		AcquiredAt:    existing.AcquiredAt,
		LastRenewedAt: now,
		Metadata:      existing.Metadata,
	}
	payload, err := updated.marshal()
	if err != nil {
		return time.Time{}, newError(KindRenewal, name, leaseID, "failed to marshal lease value", err)
	}

	result, err := renewScript.Run(ctx, p.client, []string{p.key(name)}, leaseID, duration.Milliseconds(), payload).Int()
	if err != nil {
		return time.Time{}, newError(KindRenewal, name, leaseID, "renew script failed", err)
	}
	if result != 1 {
		return time.Time{}, newError(KindLost, name, leaseID, "lease no longer held by this fencing token", nil)
	}

	return now.Add(duration), nil
}

func (p *RedisProvider) Release(ctx context.Context, name, leaseID string) error {
	_, err := releaseScript.Run(ctx, p.client, []string{p.key(name)}, leaseID).Int()
	if err != nil {
		return newError(KindProviderUnavailable, name, leaseID, "release script failed", err)
	}
	return nil
}

func (p *RedisProvider) Break(ctx context.Context, name string) error {
	if err := p.client.Del(ctx, p.key(name)).Err(); err != nil {
		return newError(KindProviderUnavailable, name, "", "break (del) failed", err)
	}
	return nil
}
