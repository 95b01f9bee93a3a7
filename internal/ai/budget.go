package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetChecker checks and records per-user daily token usage.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds token usage for the user to today's counter.
	Record(ctx context.Context, userID string, tokens int) error
}

// InMemoryBudget tracks daily usage in process memory. A non-positive limit
// means unlimited.
type InMemoryBudget struct {
	mu    sync.Mutex
	limit int64
	usage map[string]int64 // userID:day -> tokens used
	now   func() time.Time
}

// NewInMemoryBudget creates a new in-memory budget tracker.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit: dailyLimit,
		usage: make(map[string]int64),
		now:   time.Now,
	}
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[budgetKey(userID, b.now())] < b.limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(userID, b.now())] += int64(tokens)
	return nil
}

// Used returns the tokens recorded for the user today.
func (b *InMemoryBudget) Used(userID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[budgetKey(userID, b.now())]
}

// RedisBudget keeps daily counters in Redis/Dragonfly so every replica sees
// the same usage.
type RedisBudget struct {
	client *redis.Client
	limit  int64
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed budget tracker.
func NewRedisBudget(client *redis.Client, dailyLimit int64) *RedisBudget {
	return &RedisBudget{client: client, limit: dailyLimit, now: time.Now}
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read budget: %w", err)
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record budget: %w", err)
	}
	return nil
}

func (b *RedisBudget) key(userID string) string {
	return "paicourse:budget:" + budgetKey(userID, b.now())
}

func budgetKey(userID string, now time.Time) string {
	return userID + ":" + now.UTC().Format(time.DateOnly)
}
