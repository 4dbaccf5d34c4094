package lease

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"leasing/pkg/config"
)

// cosmosItem is the document stored per lease name. One item per lease;
// id and partition key are both the lease name.
type cosmosItem struct {
	ID         string            `json:"id"`
	LeaseName  string            `json:"leaseName"`
	LeaseID    string            `json:"leaseId"`
	AcquiredAt time.Time         `json:"acquiredAt"`
	RenewedAt  time.Time         `json:"renewedAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CosmosProvider implements the optimistic-concurrency strategy (C3):
// every replace and every holder delete is conditioned on the ETag last
// read, so a concurrent writer's conflicting write fails instead of
// silently overwriting. First creation relies on the id conflict instead,
// and Break deletes unconditionally. cleanupGrace is stored but not used:
// no per-item TTL is written.
type CosmosProvider struct {
	container    *azcosmos.ContainerClient
	cleanupGrace time.Duration
}

// NewCosmosProvider wraps an already-constructed container client.
func NewCosmosProvider(container *azcosmos.ContainerClient, cleanupGrace time.Duration) *CosmosProvider {
	return &CosmosProvider{container: container, cleanupGrace: cleanupGrace}
}

// NewCosmosProviderFromConfig builds a client and container handle from a
// key-credential endpoint, the standard Cosmos connectivity shape.
func NewCosmosProviderFromConfig(cfg config.CosmosConfig) (*CosmosProvider, error) {
	cred, err := azcosmos.NewKeyCredential(cfg.Key)
	if err != nil {
		return nil, newError(KindConfiguration, "", "", "invalid cosmos key", err)
	}
	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
	if err != nil {
		return nil, newError(KindConfiguration, "", "", "invalid cosmos endpoint", err)
	}
	container, err := client.NewContainer(cfg.Database, cfg.Container)
	if err != nil {
		return nil, newError(KindConfiguration, "", "", "invalid cosmos database/container", err)
	}
	return NewCosmosProvider(container, cfg.CleanupGrace), nil
}

func (p *CosmosProvider) Kind() string { return "cosmos" }

func pk(name string) azcosmos.PartitionKey {
	return azcosmos.NewPartitionKeyString(name)
}

func (p *CosmosProvider) readItem(ctx context.Context, name string) (*cosmosItem, azcore.ETag, error) {
	resp, err := p.container.ReadItem(ctx, pk(name), name, nil)
	if err != nil {
		if isCosmosStatus(err, http.StatusNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var item cosmosItem
	if err := json.Unmarshal(resp.Value, &item); err != nil {
		return nil, "", err
	}
	return &item, resp.ETag, nil
}

func (p *CosmosProvider) Acquire(ctx context.Context, name string, duration time.Duration, metadata Metadata) (*Record, error) {
	now := time.Now()
	existing, etag, err := p.readItem(ctx, name)
	if err != nil {
		return nil, newError(KindProviderUnavailable, name, "", "read item failed", err)
	}

	newItem := cosmosItem{
		ID:         name,
		LeaseName:  name,
		LeaseID:    newFencingToken(),
		AcquiredAt: now,
		RenewedAt:  now,
		ExpiresAt:  now.Add(duration),
		Metadata:   metadata,
	}
	payload, err := json.Marshal(newItem)
	if err != nil {
		return nil, newError(KindAcquisition, name, "", "failed to marshal lease item", err)
	}

	if existing == nil {
		_, err = p.container.CreateItem(ctx, pk(name), payload, nil)
		if err != nil {
			if isCosmosStatus(err, http.StatusConflict) {
				return nil, nil
			}
			return nil, newError(KindProviderUnavailable, name, "", "create item failed", err)
		}
	} else {
		if existing.ExpiresAt.After(now) {
			return nil, nil
		}
		opts := &azcosmos.ItemOptions{IfMatchEtag: &etag}
		_, err = p.container.ReplaceItem(ctx, pk(name), name, payload, opts)
		if err != nil {
			if isCosmosStatus(err, http.StatusPreconditionFailed) {
				return nil, nil
			}
			return nil, newError(KindProviderUnavailable, name, "", "replace item failed", err)
		}
	}

	return &Record{
		LeaseID:    newItem.LeaseID,
		ExpiresAt:  newItem.ExpiresAt,
		Metadata:   metadata.Clone(),
		AcquiredAt: now,
	}, nil
}

func (p *CosmosProvider) Renew(ctx context.Context, name, leaseID string, duration time.Duration) (time.Time, error) {
	existing, etag, err := p.readItem(ctx, name)
	if err != nil {
		return time.Time{}, newError(KindRenewal, name, leaseID, "read item failed", err)
	}
	if existing == nil {
		return time.Time{}, newError(KindLost, name, leaseID, "lease item no longer exists", nil)
	}
	if existing.LeaseID != leaseID {
		return time.Time{}, newError(KindLost, name, leaseID, "lease held by a different fencing token", nil)
	}

	now := time.Now()
	updated := *existing
	updated.RenewedAt = now
	updated.ExpiresAt = now.Add(duration)
	payload, err := json.Marshal(updated)
	if err != nil {
		return time.Time{}, newError(KindRenewal, name, leaseID, "failed to marshal lease item", err)
	}

	opts := &azcosmos.ItemOptions{IfMatchEtag: &etag}
	_, err = p.container.ReplaceItem(ctx, pk(name), name, payload, opts)
	if err != nil {
		if isCosmosStatus(err, http.StatusPreconditionFailed) {
			return time.Time{}, newError(KindLost, name, leaseID, "concurrent write lost the lease", err)
		}
		return time.Time{}, newError(KindRenewal, name, leaseID, "replace item failed", err)
	}

	return updated.ExpiresAt, nil
}

func (p *CosmosProvider) Release(ctx context.Context, name, leaseID string) error {
	existing, etag, err := p.readItem(ctx, name)
	if err != nil {
		return newError(KindProviderUnavailable, name, leaseID, "read item failed", err)
	}
	if existing == nil || existing.LeaseID != leaseID {
		return nil
	}

	opts := &azcosmos.ItemOptions{IfMatchEtag: &etag}
	_, err = p.container.DeleteItem(ctx, pk(name), name, opts)
	if err != nil && !isCosmosStatus(err, http.StatusNotFound) && !isCosmosStatus(err, http.StatusPreconditionFailed) {
		return newError(KindProviderUnavailable, name, leaseID, "delete item failed", err)
	}
	return nil
}

func (p *CosmosProvider) Break(ctx context.Context, name string) error {
	_, err := p.container.DeleteItem(ctx, pk(name), name, nil)
	if err != nil && !isCosmosStatus(err, http.StatusNotFound) {
		return newError(KindProviderUnavailable, name, "", "delete item failed", err)
	}
	return nil
}

func isCosmosStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == status
	}
	return false
}
