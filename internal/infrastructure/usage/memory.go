package usage

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/lexora/backend/internal/domain/entitlement"
)

const defaultShardCount = 32

// counter holds a single (tenant, unit) count together with the period
// key it was accumulated under.
type counter struct {
	count  int64
	period string
}

// memoryShard is one lock domain of the sharded store.
type memoryShard struct {
	mu       sync.RWMutex
	counters map[string]*counter
}

// MemoryStore is an in-process Store backed by a sharded map. Keys are
// distributed across shards by fnv hash so increments for different
// tenants do not contend on one lock.
type MemoryStore struct {
	shards    []*memoryShard
	shardMask uint64
	period    entitlement.PeriodFunc
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithShardCount sets the number of shards, rounded up to a power of 2.
func WithShardCount(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = make([]*memoryShard, nextPowerOfTwo(n))
		}
	}
}

// WithPeriodFunc overrides the accounting period source. Tests use this
// to exercise period rollover with a controlled clock.
func WithPeriodFunc(fn entitlement.PeriodFunc) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.period = fn
		}
	}
}

// NewMemoryStore creates an in-process usage store with monthly periods.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		shards: make([]*memoryShard, defaultShardCount),
		period: entitlement.MonthlyPeriod(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{counters: make(map[string]*counter)}
	}
	s.shardMask = uint64(len(s.shards) - 1)
	return s
}

// nextPowerOfTwo returns the smallest power of 2 >= n.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// counterKey joins tenant and unit with a separator that cannot appear
// in either.
func counterKey(tenantID, unit string) string {
	return tenantID + "\x1f" + unit
}

func (s *MemoryStore) shardFor(key string) *memoryShard {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum64()&s.shardMask]
}

// Get returns the current count for the active period, 0 for absent or
// stale-period counters.
func (s *MemoryStore) Get(_ context.Context, tenantID, unit string) (int64, error) {
	key := counterKey(tenantID, unit)
	shard := s.shardFor(key)
	period := s.period()

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	c, ok := shard.counters[key]
	if !ok || c.period != period {
		return 0, nil
	}
	return c.count, nil
}

// Increment atomically adds amount to the counter and returns the new
// count. A counter left over from a previous period is reset to zero
// before the add.
func (s *MemoryStore) Increment(_ context.Context, tenantID, unit string, amount int64) (int64, error) {
	key := counterKey(tenantID, unit)
	shard := s.shardFor(key)
	period := s.period()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	c, ok := shard.counters[key]
	if !ok || c.period != period {
		c = &counter{period: period}
		shard.counters[key] = c
	}
	c.count += amount
	return c.count, nil
}

// Reset sets the counter to 0. Resetting an absent counter is a no-op.
func (s *MemoryStore) Reset(_ context.Context, tenantID, unit string) error {
	key := counterKey(tenantID, unit)
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.counters, key)
	return nil
}

// ResetAll clears every counter across all shards.
func (s *MemoryStore) ResetAll(_ context.Context) error {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.counters = make(map[string]*counter)
		shard.mu.Unlock()
	}
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
