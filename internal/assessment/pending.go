package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

// Pending is a diagnostic quiz that has been handed out but not yet answered.
type Pending struct {
	ID        string                   `json:"id"`
	UserID    string                   `json:"user_id"`
	Topic     string                   `json:"topic"`
	Questions []generator.QuizQuestion `json:"questions"`
	CreatedAt time.Time                `json:"created_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// PendingStore holds unanswered quizzes until they are submitted or expire.
type PendingStore interface {
	Put(ctx context.Context, p Pending, ttl time.Duration) error
	// Take removes and returns the quiz. A missing, expired or foreign quiz
	// is course.ErrNotFound.
	Take(ctx context.Context, userID, id string) (Pending, error)
}

// MemoryPendingStore keeps pending quizzes in process memory.
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]Pending
	now     func() time.Time
}

// NewMemoryPendingStore creates an in-memory pending store. A nil clock
// defaults to time.Now.
func NewMemoryPendingStore(now func() time.Time) *MemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPendingStore{pending: make(map[string]Pending), now: now}
}

func (s *MemoryPendingStore) Put(_ context.Context, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ExpiresAt = s.now().Add(ttl)
	s.pending[p.ID] = p

	// Drop anything already expired so abandoned quizzes do not pile up.
	now := s.now()
	for id, old := range s.pending {
		if !now.Before(old.ExpiresAt) {
			delete(s.pending, id)
		}
	}
	return nil
}

func (s *MemoryPendingStore) Take(_ context.Context, userID, id string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok || p.UserID != userID {
		return Pending{}, fmt.Errorf("pending assessment %s: %w", id, course.ErrNotFound)
	}
	delete(s.pending, id)
	if !s.now().Before(p.ExpiresAt) {
		return Pending{}, fmt.Errorf("pending assessment %s expired: %w", id, course.ErrNotFound)
	}
	return p, nil
}

// Len returns the number of stored quizzes, expired ones included.
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RedisPendingStore keeps pending quizzes in Redis/Dragonfly so any replica
// can accept the submission. Expiry is left to the key TTL.
type RedisPendingStore struct {
	client *redis.Client
}

// NewRedisPendingStore creates a Redis-backed pending store.
func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

func (s *RedisPendingStore) Put(ctx context.Context, p Pending, ttl time.Duration) error {
	p.ExpiresAt = time.Now().Add(ttl)
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending assessment: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(p.UserID, p.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store pending assessment: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Take(ctx context.Context, userID, id string) (Pending, error) {
	raw, err := s.client.GetDel(ctx, pendingKey(userID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pending{}, fmt.Errorf("pending assessment %s: %w", id, course.ErrNotFound)
	}
	if err != nil {
		return Pending{}, fmt.Errorf("take pending assessment: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pending{}, fmt.Errorf("decode pending assessment: %w", err)
	}
	return p, nil
}

// The user ID is part of the key, so one learner cannot take another's quiz.
func pendingKey(userID, id string) string {
	return cache.Key("pending", userID, id)
}
