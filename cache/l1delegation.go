package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// DelegationPlan records a delegation decision for an (agent, task) pair.
type DelegationPlan struct {
	Target     string
	Confidence float64 // in [0,1]
	Reasoning  string
	CreatedAt  time.Time
	Metadata   map[string]string
}

// IsStale reports whether this plan is older than maxAge.
func (p DelegationPlan) IsStale(maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return time.Since(p.CreatedAt) > maxAge
}

func delegationKey(agent, task string) string { return agent + "::" + task }

func splitDelegationKey(key string) (agent, task string, ok bool) {
	parts := strings.SplitN(key, "::", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type l1Entry struct {
	plan     DelegationPlan
	listElem *list.Element // element in the LRU order list, value is the key
}

// L1DelegationConfig configures an L1DelegationCache.
type L1DelegationConfig struct {
	MaxSize int
	TTL     time.Duration // 0 disables TTL-based staleness
}

// DefaultL1DelegationConfig mirrors the original's default: 1000 entries,
// one hour TTL, LRU eviction.
func DefaultL1DelegationConfig() L1DelegationConfig {
	return L1DelegationConfig{MaxSize: 1000, TTL: time.Hour}
}

// L1DelegationCache caches delegation plans keyed by "{agent}::{task}",
// evicting least-recently-used entries once MaxSize is exceeded.
type L1DelegationCache struct {
	mu     sync.Mutex
	cfg    L1DelegationConfig
	lookup map[string]*l1Entry
	order  *list.List // front = most recently used
	stats  Stats
}

// NewL1DelegationCache constructs an empty cache under cfg.
func NewL1DelegationCache(cfg L1DelegationConfig) *L1DelegationCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	return &L1DelegationCache{
		cfg:    cfg,
		lookup: make(map[string]*l1Entry),
		order:  list.New(),
	}
}

// GetPlan looks up a plan for an agent/task pair, evicting and reporting a
// miss if it has gone stale under the configured TTL.
func (c *L1DelegationCache) GetPlan(agent, task string) (DelegationPlan, bool) {
	key := delegationKey(agent, task)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup[key]
	if !ok {
		c.stats.recordMiss()
		return DelegationPlan{}, false
	}
	if entry.plan.IsStale(c.cfg.TTL) {
		c.removeLocked(key)
		c.stats.recordMiss()
		return DelegationPlan{}, false
	}

	c.order.MoveToFront(entry.listElem)
	c.stats.recordHit()
	return entry.plan, true
}

// PutPlan stores a plan for an agent/task pair, evicting the
// least-recently-used entry if the cache is now over MaxSize.
func (c *L1DelegationCache) PutPlan(agent, task string, plan DelegationPlan) {
	key := delegationKey(agent, task)
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lookup[key]; ok {
		existing.plan = plan
		c.order.MoveToFront(existing.listElem)
	} else {
		elem := c.order.PushFront(key)
		c.lookup[key] = &l1Entry{plan: plan, listElem: elem}
	}
	c.stats.recordPut()
	c.stats.setSize(len(c.lookup))

	c.evictIfNeededLocked()
}

// InvalidatePlan removes a cached plan for an agent/task pair.
func (c *L1DelegationCache) InvalidatePlan(agent, task string) bool {
	key := delegationKey(agent, task)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

func (c *L1DelegationCache) removeLocked(key string) bool {
	entry, ok := c.lookup[key]
	if !ok {
		return false
	}
	c.order.Remove(entry.listElem)
	delete(c.lookup, key)
	c.stats.recordInvalidation()
	c.stats.setSize(len(c.lookup))
	return true
}

func (c *L1DelegationCache) evictIfNeededLocked() {
	for len(c.lookup) > c.cfg.MaxSize {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		key := oldest.Value.(string)
		c.order.Remove(oldest)
		delete(c.lookup, key)
		c.stats.setSize(len(c.lookup))
	}
}

// AgentTaskPlan pairs a task name with the plan cached for it, returned by
// the agent/task linear-scan queries.
type AgentTaskPlan struct {
	Task  string
	Agent string
	Plan  DelegationPlan
}

// GetAgentPlans linear-scans the cache for every plan belonging to agent.
func (c *L1DelegationCache) GetAgentPlans(agent string) []AgentTaskPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []AgentTaskPlan
	for key, entry := range c.lookup {
		a, task, ok := splitDelegationKey(key)
		if !ok || a != agent {
			continue
		}
		out = append(out, AgentTaskPlan{Task: task, Agent: a, Plan: entry.plan})
	}
	return out
}

// GetTaskPlans linear-scans the cache for every plan belonging to task.
func (c *L1DelegationCache) GetTaskPlans(task string) []AgentTaskPlan {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []AgentTaskPlan
	for key, entry := range c.lookup {
		agent, t, ok := splitDelegationKey(key)
		if !ok || t != task {
			continue
		}
		out = append(out, AgentTaskPlan{Task: t, Agent: agent, Plan: entry.plan})
	}
	return out
}

// Stats returns a snapshot of this cache's counters.
func (c *L1DelegationCache) Stats() Snapshot {
	return c.stats.Snapshot()
}

// Clear removes every entry.
func (c *L1DelegationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookup = make(map[string]*l1Entry)
	c.order.Init()
	c.stats.setSize(0)
}
