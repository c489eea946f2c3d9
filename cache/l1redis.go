package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisL1DelegationCache is a distributed variant of L1DelegationCache,
// storing each plan as a JSON value under its delegation key with Redis's
// own TTL handling standing in for the in-process LRU/TTL eviction.
// Grounded on the pack's go-redis session-manager usage: a thin wrapper
// around *redis.Client, serializing domain values to/from a hash or
// string value and using the client's native TTL instead of reimplementing
// one, plus SCAN over a key prefix for the agent/task linear-scan queries.
type RedisL1DelegationCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisL1DelegationCache wraps an existing Redis client. keyPrefix
// namespaces this cache's keys (e.g. "ccos:delegation:"); ttl of 0 stores
// entries without expiration.
func NewRedisL1DelegationCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisL1DelegationCache {
	return &RedisL1DelegationCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisL1DelegationCache) redisKey(agent, task string) string {
	return c.keyPrefix + delegationKey(agent, task)
}

type redisPlanDocument struct {
	Agent      string            `json:"agent"`
	Task       string            `json:"task"`
	Target     string            `json:"target"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	CreatedAt  int64             `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// GetPlan fetches a plan for an agent/task pair from Redis.
func (c *RedisL1DelegationCache) GetPlan(ctx context.Context, agent, task string) (DelegationPlan, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(agent, task)).Bytes()
	if err == redis.Nil {
		return DelegationPlan{}, false, nil
	}
	if err != nil {
		return DelegationPlan{}, false, fmt.Errorf("cache: redis get failed: %w", err)
	}
	var doc redisPlanDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DelegationPlan{}, false, fmt.Errorf("cache: failed to decode cached plan: %w", err)
	}
	return DelegationPlan{
		Target:     doc.Target,
		Confidence: doc.Confidence,
		Reasoning:  doc.Reasoning,
		CreatedAt:  time.Unix(doc.CreatedAt, 0),
		Metadata:   doc.Metadata,
	}, true, nil
}

// PutPlan stores a plan for an agent/task pair in Redis under this
// cache's TTL.
func (c *RedisL1DelegationCache) PutPlan(ctx context.Context, agent, task string, plan DelegationPlan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	doc := redisPlanDocument{
		Agent: agent, Task: task,
		Target: plan.Target, Confidence: plan.Confidence, Reasoning: plan.Reasoning,
		CreatedAt: plan.CreatedAt.Unix(), Metadata: plan.Metadata,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: failed to encode plan: %w", err)
	}
	if err := c.client.Set(ctx, c.redisKey(agent, task), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set failed: %w", err)
	}
	return nil
}

// InvalidatePlan removes a cached plan for an agent/task pair.
func (c *RedisL1DelegationCache) InvalidatePlan(ctx context.Context, agent, task string) error {
	return c.client.Del(ctx, c.redisKey(agent, task)).Err()
}

// GetAgentPlans scans for every plan belonging to agent.
func (c *RedisL1DelegationCache) GetAgentPlans(ctx context.Context, agent string) ([]AgentTaskPlan, error) {
	return c.scanPlans(ctx, c.keyPrefix+agent+"::*")
}

// GetTaskPlans scans for every plan belonging to task. Redis glob
// patterns don't support a suffix match, so this scans the whole
// namespace and filters client-side.
func (c *RedisL1DelegationCache) GetTaskPlans(ctx context.Context, task string) ([]AgentTaskPlan, error) {
	all, err := c.scanPlans(ctx, c.keyPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]AgentTaskPlan, 0, len(all))
	for _, p := range all {
		if p.Task == task {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *RedisL1DelegationCache) scanPlans(ctx context.Context, pattern string) ([]AgentTaskPlan, error) {
	var out []AgentTaskPlan
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		raw, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var doc redisPlanDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		out = append(out, AgentTaskPlan{
			Agent: doc.Agent,
			Task:  doc.Task,
			Plan: DelegationPlan{
				Target: doc.Target, Confidence: doc.Confidence, Reasoning: doc.Reasoning,
				CreatedAt: time.Unix(doc.CreatedAt, 0), Metadata: doc.Metadata,
			},
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: redis scan failed: %w", err)
	}
	return out, nil
}
