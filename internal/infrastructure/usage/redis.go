package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "usage:"

// expiryGrace keeps closed-period keys readable for a few days after
// rollover so late billing reads do not see them vanish mid-invoice.
const expiryGrace = 7 * 24 * time.Hour

// RedisStore implements Store on top of Redis atomic counters. It is
// the backend for multi-instance deployments where every replica must
// observe the same counts. Keys are period-scoped
// ("usage:<period>:<tenant>:<unit>") and expire shortly after the
// period closes, so rollover needs no explicit reset.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	period    entitlement.PeriodFunc
	now       func() time.Time
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// KeyPrefix namespaces counter keys, defaulting to "usage:"
	KeyPrefix string
}

// NewRedisStore creates a Redis-backed usage store and verifies the
// connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient creates a store with an existing Redis client.
// Useful for testing or when sharing a client across components.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		period:    entitlement.MonthlyPeriod(time.Now),
		now:       time.Now,
	}
}

// WithClock overrides the store's clock and period source. Test hook.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	s.period = entitlement.MonthlyPeriod(now)
	return s
}

func (s *RedisStore) key(tenantID, unit string) string {
	return fmt.Sprintf("%s%s:%s:%s", s.keyPrefix, s.period(), tenantID, unit)
}

// keyTTL returns the remaining lifetime for a current-period key.
func (s *RedisStore) keyTTL() time.Duration {
	return time.Until(entitlement.EndOfMonth(s.now())) + expiryGrace
}

// Get returns the current count, 0 if no counter exists yet.
func (s *RedisStore) Get(ctx context.Context, tenantID, unit string) (int64, error) {
	val, err := s.client.Get(ctx, s.key(tenantID, unit)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return val, nil
}

// Increment atomically adds amount via INCRBY and refreshes the key
// expiry. Atomicity across concurrent callers is Redis's guarantee; the
// trailing EXPIRE does not affect the count.
func (s *RedisStore) Increment(ctx context.Context, tenantID, unit string, amount int64) (int64, error) {
	key := s.key(tenantID, unit)

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	pipe.Expire(ctx, key, s.keyTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return incr.Val(), nil
}

// Reset deletes the current-period counter. Deleting an absent key is a
// no-op, which gives the required idempotence.
func (s *RedisStore) Reset(ctx context.Context, tenantID, unit string) error {
	if err := s.client.Del(ctx, s.key(tenantID, unit)).Err(); err != nil {
		return fmt.Errorf("failed to reset usage counter: %w", err)
	}
	return nil
}

// ResetAll deletes every usage counter under the store's key prefix,
// all periods included. Development and test use only.
func (s *RedisStore) ResetAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete usage counter %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan usage counters: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client (for testing/monitoring).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
