package workingmemory

import (
	"context"
	"strconv"

	"goa.design/pulse/rmap"
)

// ClusterBudget publishes this node's total approx-token usage into a
// replicated map so every node sharing the same backing store can prune
// against a cluster-wide view instead of only its own process memory,
// grounded on the registry health tracker's use of rmap.Map for cross-node
// coordination (Join, Set, Get, Subscribe/Unsubscribe).
type ClusterBudget struct {
	usage *rmap.Map
	nodeID string
}

// NewClusterBudget wraps a joined replicated map. Callers obtain usage via
// rmap.Join(ctx, name, redisClient) and pass it in here along with a stable
// identifier for this node.
func NewClusterBudget(usage *rmap.Map, nodeID string) *ClusterBudget {
	return &ClusterBudget{usage: usage, nodeID: nodeID}
}

// ReportUsage publishes this node's current total approx-token count.
func (b *ClusterBudget) ReportUsage(ctx context.Context, totalTokens int) error {
	_, err := b.usage.Set(ctx, b.nodeID, strconv.Itoa(totalTokens))
	return err
}

// ClusterTotal sums every node's last-reported usage.
func (b *ClusterBudget) ClusterTotal() int {
	total := 0
	for _, key := range b.usage.Keys() {
		val, ok := b.usage.Get(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// Forget removes this node's entry, used on clean shutdown so a stale
// reading doesn't linger after the node leaves the cluster.
func (b *ClusterBudget) Forget(ctx context.Context) error {
	_, err := b.usage.Delete(ctx, b.nodeID)
	return err
}
