package config

import "time"

var Config *Type

// RedisConfig configures the atomic-KV backend.
type RedisConfig struct {
	URL      string `json:"url"`
	Password string `json:"password,default=default"`
	Prefix   string `json:"prefix"`
}

// AzureBlobConfig configures the native-lease backend.
type AzureBlobConfig struct {
	ConnectionString string `json:"connectionString"`
	Container        string `json:"container"`
	Prefix           string `json:"prefix"`
}

// CosmosConfig configures the optimistic-concurrency backend.
type CosmosConfig struct {
	Endpoint     string        `json:"endpoint"`
	Key          string        `json:"key"`
	Database     string        `json:"database"`
	Container    string        `json:"container"`
	CleanupGrace time.Duration `json:"cleanupGrace"`
}

// LeaseConfig configures the Manager and every Handle's renewal engine.
// Struct tags enforce spec.md §7's Configuration-error boundaries before
// a Manager is ever constructed.
type LeaseConfig struct {
	Name                    string        `json:"name" validate:"required"`
	DefaultDuration         time.Duration `json:"defaultDuration" validate:"omitempty,gt=0"`
	AutoRenewInterval       time.Duration `json:"autoRenewInterval" validate:"omitempty,gt=0"`
	AutoRenewRetryInterval  time.Duration `json:"autoRenewRetryInterval" validate:"omitempty,gt=0"`
	AutoRenewMaxRetries     int           `json:"autoRenewMaxRetries" validate:"gte=0"`
	AutoRenewSafetyFraction float64       `json:"autoRenewSafetyFraction" validate:"omitempty,gte=0.5,lte=0.95"`
	// AcquireTimeout follows lease.Manager's three-way convention: 0 is a
	// single try_acquire, a positive value is a bounded poll, and a
	// negative value (e.g. "-1s") polls until held or the caller's context
	// ends. No struct-level bound here since every sign is meaningful.
	AcquireTimeout          time.Duration `json:"acquireTimeout"`
	AcquireRetryInterval    time.Duration `json:"acquireRetryInterval" validate:"omitempty,gt=0"`
}

// Type is the demo binary's top-level configuration, loaded from a YAML
// file and overridable by environment variables (see environment.go).
type Type struct {
	Mode     string `json:"mode"`
	NodeName string `json:"nodeName"` // loaded and overridable by LEASING_NODE_NAME; not read by the demo binary or the lease package

	// Backend selects which Provider implementation to construct: "redis", "azureblob", or "cosmos".
	Backend string `json:"backend" validate:"required,oneof=redis azureblob cosmos"`

	Redis     RedisConfig     `json:"redis"`
	AzureBlob AzureBlobConfig `json:"azureBlob"`
	Cosmos    CosmosConfig    `json:"cosmos"`
	Lease     LeaseConfig     `json:"lease"`
}
