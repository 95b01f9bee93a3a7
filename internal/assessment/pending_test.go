package assessment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
)

func TestMemoryPendingStore(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store := assessment.NewMemoryPendingStore(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Put(ctx, assessment.Pending{ID: "a", UserID: "u1", Topic: "Go"}, time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	p, err := store.Take(ctx, "u1", "a")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if p.Topic != "Go" || !p.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Errorf("Take() = %+v", p)
	}

	if _, err := store.Take(ctx, "u1", "a"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("second Take() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryPendingStore_Expiry(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store := assessment.NewMemoryPendingStore(func() time.Time { return now })
	ctx := context.Background()

	_ = store.Put(ctx, assessment.Pending{ID: "old", UserID: "u1"}, time.Minute)
	now = now.Add(time.Minute)

	if _, err := store.Take(ctx, "u1", "old"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("Take() at expiry error = %v, want ErrNotFound", err)
	}

	_ = store.Put(ctx, assessment.Pending{ID: "stale", UserID: "u1"}, time.Minute)
	now = now.Add(2 * time.Minute)
	_ = store.Put(ctx, assessment.Pending{ID: "fresh", UserID: "u1"}, time.Minute)
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after expired quizzes are dropped", got)
	}
}

func TestMemoryPendingStore_Ownership(t *testing.T) {
	store := assessment.NewMemoryPendingStore(nil)
	ctx := context.Background()

	_ = store.Put(ctx, assessment.Pending{ID: "a", UserID: "u1"}, time.Minute)
	if _, err := store.Take(ctx, "u2", "a"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("Take() by another user error = %v, want ErrNotFound", err)
	}
	if _, err := store.Take(ctx, "u1", "a"); err != nil {
		t.Errorf("Take() by owner error = %v", err)
	}
}
