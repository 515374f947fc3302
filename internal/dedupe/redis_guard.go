// Package dedupe guards outbox submissions with Redis idempotency keys, so a
// retried request does not queue the same moderation action twice.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "fallen:idempotency:"
	defaultTTL    = 24 * time.Hour
	// claimTTL bounds how long a crashed request can hold a key it never
	// completed.
	claimTTL = 30 * time.Second

	// inFlight marks a key whose action has not been written yet.
	inFlight = "0"
)

// Claim is the outcome of trying to take an idempotency key.
type Claim struct {
	// Acquired is true when the caller owns the key and must Complete or
	// Release it.
	Acquired bool
	// ExistingID is the action ID recorded under the key by an earlier
	// request. Zero while that request is still in flight.
	ExistingID int64
}

// InFlight reports whether another request holds the key without a result.
func (c Claim) InFlight() bool {
	return !c.Acquired && c.ExistingID == 0
}

type RedisGuard struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	claimTTL time.Duration
}

// NewRedisGuard connects to redisURL and verifies the connection.
func NewRedisGuard(redisURL string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisGuardWithClient(client, ttl), nil
}

func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{client: client, prefix: defaultPrefix, ttl: ttl, claimTTL: min(claimTTL, ttl)}
}

func (g *RedisGuard) key(idempotencyKey string) string {
	return g.prefix + idempotencyKey
}

// Claim takes the key if nobody holds it. Otherwise it reports the action ID
// already recorded under the key, or an in-flight claim.
func (g *RedisGuard) Claim(ctx context.Context, idempotencyKey string) (Claim, error) {
	key := g.key(idempotencyKey)
	// A key can expire between SETNX and GET; one retry covers that.
	for attempt := 0; attempt < 2; attempt++ {
		acquired, err := g.client.SetNX(ctx, key, inFlight, g.claimTTL).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("claim idempotency key: %w", err)
		}
		if acquired {
			return Claim{Acquired: true}, nil
		}

		value, err := g.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Claim{}, fmt.Errorf("read idempotency key: %w", err)
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Claim{}, fmt.Errorf("parse idempotency key %q: %w", value, err)
		}
		return Claim{ExistingID: id}, nil
	}
	return Claim{}, fmt.Errorf("claim idempotency key: key churned during claim")
}

// Complete records actionID under a key taken with Claim and extends it to
// the full replay TTL.
func (g *RedisGuard) Complete(ctx context.Context, idempotencyKey string, actionID int64) error {
	err := g.client.Set(ctx, g.key(idempotencyKey), strconv.FormatInt(actionID, 10), g.ttl).Err()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claimed key so the request can be retried.
func (g *RedisGuard) Release(ctx context.Context, idempotencyKey string) error {
	if err := g.client.Del(ctx, g.key(idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
