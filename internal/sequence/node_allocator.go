package sequence

import (
	"context"
	"fmt"

	"github.com/feedgrid/feedgrid/internal/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	nodeIDPrefix = "/feedgrid/nodes/ids/"
	nodeLeaseTTL = 10 // seconds
)

// NodeAllocator leases a unique snowflake node id from etcd so that
// concurrently running processes never share one. The claim is bound to a
// lease and disappears when the process stops renewing it.
type NodeAllocator struct {
	client  *clientv3.Client
	logger  *logging.Logger
	leaseID clientv3.LeaseID
	nodeID  int64
	cancel  context.CancelFunc
}

// NewNodeAllocator creates an allocator over an existing etcd client
func NewNodeAllocator(client *clientv3.Client, logger *logging.Logger) *NodeAllocator {
	return &NodeAllocator{
		client: client,
		logger: logger,
		nodeID: -1,
	}
}

// Allocate claims the first free node id in [0, MaxNodeID] and starts
// renewing its lease in the background
func (a *NodeAllocator) Allocate(ctx context.Context, instance string) (int64, error) {
	lease, err := a.client.Grant(ctx, nodeLeaseTTL)
	if err != nil {
		return -1, fmt.Errorf("failed to create lease: %w", err)
	}
	a.leaseID = lease.ID

	for candidate := int64(0); candidate <= MaxNodeID; candidate++ {
		key := fmt.Sprintf("%s%d", nodeIDPrefix, candidate)

		// Claim only when the key does not exist yet
		resp, err := a.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, instance, clientv3.WithLease(a.leaseID))).
			Commit()
		if err != nil {
			return -1, fmt.Errorf("failed to claim node id %d: %w", candidate, err)
		}

		if resp.Succeeded {
			a.nodeID = candidate

			keepCtx, cancel := context.WithCancel(context.Background())
			a.cancel = cancel
			go a.keepAlive(keepCtx)

			a.logger.Info("Node id allocated",
				"node_id", candidate,
				"instance", instance,
				"lease_id", int64(a.leaseID),
			)
			return candidate, nil
		}
	}

	return -1, fmt.Errorf("no free node id in [0, %d]", MaxNodeID)
}

// NodeID returns the allocated id, or -1 before Allocate succeeds
func (a *NodeAllocator) NodeID() int64 {
	return a.nodeID
}

func (a *NodeAllocator) keepAlive(ctx context.Context) {
	ch, err := a.client.KeepAlive(ctx, a.leaseID)
	if err != nil {
		a.logger.Error("Failed to start node id lease keep-alive", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				a.logger.Warn("Node id lease keep-alive channel closed",
					"node_id", a.nodeID,
				)
				return
			}
			_ = resp
		}
	}
}

// Release gives the id back and stops lease renewal
func (a *NodeAllocator) Release(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.leaseID != 0 {
		if _, err := a.client.Revoke(ctx, a.leaseID); err != nil {
			return fmt.Errorf("failed to revoke node id lease: %w", err)
		}
	}
	a.nodeID = -1
	return nil
}
