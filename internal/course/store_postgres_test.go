package course_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/database"
)

func newPostgresStore(t *testing.T) (*course.PostgresStore, *database.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("paicourse"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(url))

	db, err := database.New(ctx, url, 10, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	store, err := course.NewPostgresStore(db.Pool)
	require.NoError(t, err)
	return store, db
}

func TestPostgresStore_Integration(t *testing.T) {
	store, db := newPostgresStore(t)
	ctx := context.Background()

	u, c := seedCourse(t, store)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, 0, c.CompletedModules)
	assert.Len(t, c.Modules, 6)
	assert.Equal(t, 1, c.Modules[0].ExitQuiz[1].CorrectIndex, "modules should round-trip through JSONB")

	t.Run("unique email", func(t *testing.T) {
		_, err := store.CreateUser(ctx, course.User{Email: u.Email, PasswordHash: "x"})
		assert.ErrorIs(t, err, course.ErrConflict)
	})

	t.Run("ownership", func(t *testing.T) {
		other, err := store.CreateUser(ctx, course.User{Email: "other@example.com", PasswordHash: "x"})
		require.NoError(t, err)

		_, err = store.GetCourse(ctx, other.ID, c.ID)
		assert.ErrorIs(t, err, course.ErrNotFound)
		_, err = store.GetCourse(ctx, u.ID, "not-a-uuid")
		assert.ErrorIs(t, err, course.ErrNotFound)
		_, err = store.CreateCourse(ctx, course.Course{UserID: "00000000-0000-0000-0000-000000000000", Modules: sixModules()})
		assert.ErrorIs(t, err, course.ErrNotFound)
	})

	t.Run("advance module CAS", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		advanced := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := store.AdvanceModule(ctx, u.ID, c.ID, 0)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					advanced++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, advanced)

		got, err := store.GetCourse(ctx, u.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.CompletedModules)
		assert.Equal(t, 17, got.Progress)
	})

	t.Run("complete lesson once", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		inserted := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, ok, err := store.CompleteLesson(ctx, course.LessonCompletion{
					UserID: u.ID, CourseID: c.ID, ModuleIndex: 0, TopicIndex: 0, XPEarned: 15,
					CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				})
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, inserted)

		got, err := store.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 15, got.TotalXP)
		assert.Equal(t, 1, got.StreakDays)
		require.NotNil(t, got.LastLessonDate)
		assert.Equal(t, "2026-03-01", got.LastLessonDate.Format(time.DateOnly))

		lc, err := store.GetLessonCompletion(ctx, u.ID, c.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 15, lc.XPEarned)

		_, stats, ok, err := store.CompleteLesson(ctx, course.LessonCompletion{
			UserID: u.ID, CourseID: c.ID, ModuleIndex: 0, TopicIndex: 1, XPEarned: 5,
			CompletedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 20, stats.TotalXP)
		assert.Equal(t, 2, stats.StreakDays)
	})

	t.Run("assessments", func(t *testing.T) {
		_, err := store.CreateAssessment(ctx, course.Assessment{
			UserID:     u.ID,
			Topic:      "Algebra",
			Score:      3,
			Feedback:   "ok",
			WeakTopics: []string{"fractions"},
			Analysis:   []course.QuestionAnalysis{{Question: "q", Selected: 1, Correct: 0}},
		})
		require.NoError(t, err)

		list, err := store.ListAssessments(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, []string{"fractions"}, list[0].WeakTopics)
		assert.Len(t, list[0].Analysis, 1)
	})

	t.Run("events", func(t *testing.T) {
		logger := course.NewPostgresEventLogger(db.Pool)
		require.NoError(t, logger.LogEvent(course.Event{
			UserID:    u.ID,
			CourseID:  c.ID,
			EventType: course.EventModuleUnlocked,
			Data:      map[string]any{"module_index": 0},
		}))
		require.NoError(t, logger.LogEvent(course.Event{UserID: u.ID, EventType: course.EventCourseCreated}))

		var n int
		require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE user_id = $1::uuid`, u.ID).Scan(&n))
		assert.Equal(t, 2, n)
	})
}
