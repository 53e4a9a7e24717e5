package component

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
)

const componentPrefix = "/feedgrid/components"

// Status enables or disables a component without deleting its subscriptions
type Status string

const (
	StatusEnabled  Status = "ENABLED"
	StatusDisabled Status = "DISABLED"
)

// Component is a tenant-scoped subscription domain, e.g. "follow" or
// "space-member". Every subscription edge and feed belongs to exactly one
// component.
type Component struct {
	TenantID    string    `json:"tenantId"`
	ComponentID string    `json:"componentId"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Registry stores component definitions in etcd and reads them through the
// two-tier cache. Registrations are rare and reads are on every request, so
// the read path must not touch etcd.
type Registry struct {
	client *clientv3.Client
	cache  *cache.Manager
	logger *logging.Logger
}

// NewRegistry creates a component registry
func NewRegistry(client *clientv3.Client, cacheManager *cache.Manager, logger *logging.Logger) *Registry {
	return &Registry{
		client: client,
		cache:  cacheManager,
		logger: logger,
	}
}

func componentKey(tenantID, componentID string) string {
	return path.Join(componentPrefix, tenantID, componentID)
}

func cacheKey(tenantID, componentID string) string {
	return tenantID + ":" + componentID
}

// Create registers a component. Fails with already_exists when the tenant
// already has a component under that id.
func (r *Registry) Create(ctx context.Context, c Component) (Component, error) {
	if c.TenantID == "" || c.ComponentID == "" {
		return Component{}, errors.InvalidArguments("tenant id and component id are required")
	}
	if c.Status == "" {
		c.Status = StatusEnabled
	}
	c.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return Component{}, fmt.Errorf("failed to marshal component: %w", err)
	}

	key := componentKey(c.TenantID, c.ComponentID)

	// Transactional create so two concurrent registrations cannot both win
	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return Component{}, fmt.Errorf("failed to store component: %w", err)
	}
	if !resp.Succeeded {
		return Component{}, errors.AlreadyExists("component %s already exists for tenant %s", c.ComponentID, c.TenantID)
	}

	r.logger.Info("Component registered",
		"tenant_id", c.TenantID,
		"component_id", c.ComponentID)

	return c, nil
}

// Get returns the component, served from cache when possible
func (r *Registry) Get(ctx context.Context, tenantID, componentID string) (Component, error) {
	data, err := r.cache.GetOrLoad(ctx, cache.TypeComponent, cacheKey(tenantID, componentID), func(ctx context.Context) ([]byte, error) {
		return r.fetch(ctx, tenantID, componentID)
	})
	if err != nil {
		return Component{}, err
	}

	var c Component
	if err := json.Unmarshal(data, &c); err != nil {
		return Component{}, fmt.Errorf("failed to unmarshal component: %w", err)
	}
	return c, nil
}

// fetch reads the component directly from etcd
func (r *Registry) fetch(ctx context.Context, tenantID, componentID string) ([]byte, error) {
	resp, err := r.client.Get(ctx, componentKey(tenantID, componentID))
	if err != nil {
		return nil, fmt.Errorf("failed to read component: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, errors.NotFound("component %s not found for tenant %s", componentID, tenantID)
	}
	return resp.Kvs[0].Value, nil
}

// List returns all components of a tenant
func (r *Registry) List(ctx context.Context, tenantID string) ([]Component, error) {
	prefix := componentKey(tenantID, "") + "/"
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}

	components := make([]Component, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var c Component
		if err := json.Unmarshal(kv.Value, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal component %s: %w", kv.Key, err)
		}
		components = append(components, c)
	}
	return components, nil
}

// Update replaces the mutable fields of an existing component and evicts it
// from every cache tier
func (r *Registry) Update(ctx context.Context, c Component) (Component, error) {
	key := componentKey(c.TenantID, c.ComponentID)

	current, err := r.fetch(ctx, c.TenantID, c.ComponentID)
	if err != nil {
		return Component{}, err
	}

	var stored Component
	if err := json.Unmarshal(current, &stored); err != nil {
		return Component{}, fmt.Errorf("failed to unmarshal component: %w", err)
	}

	stored.Description = c.Description
	if c.Status != "" {
		stored.Status = c.Status
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return Component{}, fmt.Errorf("failed to marshal component: %w", err)
	}

	if _, err := r.client.Put(ctx, key, string(data)); err != nil {
		return Component{}, fmt.Errorf("failed to store component: %w", err)
	}

	if err := r.cache.Evict(ctx, cache.TypeComponent, cacheKey(c.TenantID, c.ComponentID), cache.StrategyLocal, cache.StrategyGlobal); err != nil {
		r.logger.Warn("Failed to evict component cache",
			"tenant_id", c.TenantID,
			"component_id", c.ComponentID,
			"error", err)
	}

	return stored, nil
}

// EnsureActive fails unless the component exists and is enabled
func (r *Registry) EnsureActive(ctx context.Context, tenantID, componentID string) error {
	c, err := r.Get(ctx, tenantID, componentID)
	if err != nil {
		return err
	}
	if c.Status != StatusEnabled {
		return errors.NoPermission("component %s is disabled", componentID)
	}
	return nil
}
