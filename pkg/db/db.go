// Package db wires the shared backend clients used by the demo binary.
// The Redis client is constructed once here and handed to the lease
// package, matching the single-writer, shared-connection-pool contract the
// core requires of backend clients.
package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"leasing/pkg/config"
	"leasing/pkg/log"
)

var DB Context

// Context holds the backend clients that outlive a single Provider.
// It is a singleton, initialized once via Setup().
type Context struct {
	RedisClient *redis.Client
}

// Setup initializes the database context for the configured backend.
// Only the Redis client is eagerly constructed here; the Azure Blob and
// Cosmos clients are built by the lease package's own factories
// (lease.NewAzureBlobProviderFromConfig, lease.NewCosmosProviderFromConfig),
// which perform no I/O when called.
func Setup() error {
	DB = Context{}

	if config.Config.Backend != "redis" {
		return nil
	}

	opts, err := redis.ParseURL(config.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	if config.Config.Redis.Password != "" {
		opts.Password = config.Config.Redis.Password
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	DB.RedisClient = client
	return nil
}

// Shutdown closes the database connections.
func Shutdown() {
	if DB.RedisClient == nil {
		return
	}
	if err := DB.RedisClient.Close(); err != nil {
		log.Errorln(fmt.Errorf("close redis client: %w", err))
	}
}
