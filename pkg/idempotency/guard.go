// Package idempotency keeps duplicate workflow requests away from the store.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "wfm:request:"
	DefaultTTL    = 10 * time.Minute
)

// RedisGuard claims (payload, workflow) pairs with SETNX. A claim only
// expresses that another consumer is already handling the pair; the store
// lookup stays authoritative.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*RedisGuard)

func WithPrefix(prefix string) Option {
	return func(g *RedisGuard) {
		g.prefix = prefix
	}
}

// WithTTL bounds how long a claim outlives a consumer that never released it.
func WithTTL(ttl time.Duration) Option {
	return func(g *RedisGuard) {
		g.ttl = ttl
	}
}

func NewRedisGuard(client redis.UniversalClient, opts ...Option) *RedisGuard {
	g := &RedisGuard{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Claim reports whether the caller is the first to claim the pair.
func (g *RedisGuard) Claim(ctx context.Context, payloadID, workflowID string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, g.key(payloadID, workflowID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim request %s/%s: %w", payloadID, workflowID, err)
	}

	return claimed, nil
}

// Release drops a claim so a redelivered request can be handled again.
func (g *RedisGuard) Release(ctx context.Context, payloadID, workflowID string) error {
	err := g.client.Del(ctx, g.key(payloadID, workflowID)).Err()
	if err != nil {
		return fmt.Errorf("failed to release request %s/%s: %w", payloadID, workflowID, err)
	}

	return nil
}

func (g *RedisGuard) key(payloadID, workflowID string) string {
	return g.prefix + payloadID + ":" + workflowID
}
