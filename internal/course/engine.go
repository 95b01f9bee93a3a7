package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/p-n-ai/pai-course/internal/generator"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

const (
	defaultLessonXP    = 10
	maxLessonXP        = 100
	defaultLessonCache = 7 * 24 * time.Hour
)

// LessonGenerator produces lesson content for a topic.
type LessonGenerator interface {
	GenerateLesson(ctx context.Context, topic, level string) (json.RawMessage, error)
}

// LessonCache stores generated lessons. *cache.Cache satisfies it.
type LessonCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// EngineConfig holds dependencies for the course engine.
type EngineConfig struct {
	Store     Store
	Lessons   LessonGenerator  // required for Lesson
	Events    EventLogger      // optional (default no-op)
	Cache     LessonCache      // optional lesson cache
	LessonTTL time.Duration    // lesson cache TTL (default 7 days)
	Now       func() time.Time // clock (default time.Now)
}

// Engine owns course progress: module unlocking and lesson XP.
type Engine struct {
	store     Store
	lessons   LessonGenerator
	events    EventLogger
	cache     LessonCache
	lessonTTL time.Duration
	now       func() time.Time
}

// NewEngine creates a new course engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	ttl := cfg.LessonTTL
	if ttl <= 0 {
		ttl = defaultLessonCache
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     store,
		lessons:   cfg.Lessons,
		events:    events,
		cache:     cfg.Cache,
		lessonTTL: ttl,
		now:       now,
	}
}

// VerifyResult is the outcome of an exit-quiz attempt.
type VerifyResult struct {
	Passed           bool   `json:"passed"`
	AlreadyUnlocked  bool   `json:"already_unlocked"`
	Grade            *Grade `json:"grade,omitempty"`
	CompletedModules int    `json:"completed_modules"`
	Progress         int    `json:"progress"`
}

// VerifyModule grades an exit-quiz attempt for module moduleIndex and, on a
// pass, unlocks the next module.
func (e *Engine) VerifyModule(ctx context.Context, userID, courseID string, moduleIndex int, answers []int) (VerifyResult, error) {
	c, err := e.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		return VerifyResult{}, err
	}
	if moduleIndex < 0 || moduleIndex >= len(c.Modules) {
		return VerifyResult{}, fmt.Errorf("module %d of course %s: %w", moduleIndex, courseID, ErrNotFound)
	}

	switch StateOf(c.CompletedModules, moduleIndex) {
	case StatePassed:
		return alreadyUnlocked(c), nil
	case StateLocked:
		return VerifyResult{}, fmt.Errorf("module %d of course %s: %w", moduleIndex, courseID, ErrForbidden)
	}

	grade := GradeExitQuiz(NormalizeExitQuiz(c.Modules[moduleIndex]), answers)
	if !grade.Passed {
		e.logEvent(Event{
			UserID:    userID,
			CourseID:  courseID,
			EventType: EventModuleFailed,
			Data: map[string]any{
				"module_index":  moduleIndex,
				"correct_count": grade.CorrectCount,
				"total":         grade.Total,
			},
		})
		return VerifyResult{
			Grade:            &grade,
			CompletedModules: c.CompletedModules,
			Progress:         c.Progress,
		}, nil
	}

	updated, advanced, err := e.store.AdvanceModule(ctx, userID, courseID, moduleIndex)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("advance module: %w", err)
	}
	if !advanced {
		// A concurrent request passed the same module first.
		res := alreadyUnlocked(updated)
		res.Grade = &grade
		return res, nil
	}

	slog.Info("module unlocked",
		"user_id", userID,
		"course_id", courseID,
		"module_index", moduleIndex,
		"completed_modules", updated.CompletedModules,
	)
	e.logEvent(Event{
		UserID:    userID,
		CourseID:  courseID,
		EventType: EventModuleUnlocked,
		Data: map[string]any{
			"module_index":      moduleIndex,
			"completed_modules": updated.CompletedModules,
			"progress":          updated.Progress,
		},
	})
	return VerifyResult{
		Passed:           true,
		Grade:            &grade,
		CompletedModules: updated.CompletedModules,
		Progress:         updated.Progress,
	}, nil
}

func alreadyUnlocked(c Course) VerifyResult {
	return VerifyResult{
		Passed:           true,
		AlreadyUnlocked:  true,
		CompletedModules: c.CompletedModules,
		Progress:         c.Progress,
	}
}

// LessonResult is the outcome of completing a lesson.
type LessonResult struct {
	AlreadyCompleted bool  `json:"already_completed"`
	XPEarned         int   `json:"xp_earned"`
	Stats            Stats `json:"stats"`
}

// CompleteLesson awards xp for the lesson at (moduleIndex, topicIndex) once.
// Replays return the XP of the original completion and change nothing. A
// zero xp awards the default amount.
func (e *Engine) CompleteLesson(ctx context.Context, userID, courseID string, moduleIndex, topicIndex, xp int) (LessonResult, error) {
	if xp == 0 {
		xp = defaultLessonXP
	}
	if xp < 0 || xp > maxLessonXP {
		return LessonResult{}, fmt.Errorf("xp %d outside 1..%d: %w", xp, maxLessonXP, ErrValidation)
	}

	c, err := e.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		return LessonResult{}, err
	}
	if _, ok := c.LessonTopic(moduleIndex, topicIndex); !ok {
		return LessonResult{}, fmt.Errorf("lesson %d/%d of course %s: %w", moduleIndex, topicIndex, courseID, ErrNotFound)
	}
	if StateOf(c.CompletedModules, moduleIndex) == StateLocked {
		return LessonResult{}, fmt.Errorf("module %d of course %s: %w", moduleIndex, courseID, ErrForbidden)
	}

	existing, err := e.store.GetLessonCompletion(ctx, userID, courseID, moduleIndex, topicIndex)
	switch {
	case err == nil:
		return e.replayedLesson(ctx, userID, existing)
	case !errors.Is(err, ErrNotFound):
		return LessonResult{}, fmt.Errorf("lookup lesson completion: %w", err)
	}

	lc, stats, inserted, err := e.store.CompleteLesson(ctx, LessonCompletion{
		UserID:      userID,
		CourseID:    courseID,
		ModuleIndex: moduleIndex,
		TopicIndex:  topicIndex,
		XPEarned:    xp,
		CompletedAt: e.now(),
	})
	if err != nil {
		return LessonResult{}, fmt.Errorf("complete lesson: %w", err)
	}
	if !inserted {
		return LessonResult{AlreadyCompleted: true, XPEarned: lc.XPEarned, Stats: stats}, nil
	}

	e.logEvent(Event{
		UserID:    userID,
		CourseID:  courseID,
		EventType: EventLessonCompleted,
		Data: map[string]any{
			"module_index": moduleIndex,
			"topic_index":  topicIndex,
			"xp_earned":    lc.XPEarned,
			"streak_days":  stats.StreakDays,
		},
	})
	return LessonResult{XPEarned: lc.XPEarned, Stats: stats}, nil
}

func (e *Engine) replayedLesson(ctx context.Context, userID string, lc LessonCompletion) (LessonResult, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return LessonResult{}, fmt.Errorf("load user: %w", err)
	}
	return LessonResult{AlreadyCompleted: true, XPEarned: lc.XPEarned, Stats: u.Stats}, nil
}

// CreateCourse stores a new course built from s for userID.
func (e *Engine) CreateCourse(ctx context.Context, userID, topic string, s Syllabus) (Course, error) {
	c, err := e.store.CreateCourse(ctx, Course{
		UserID:  userID,
		Topic:   topic,
		Level:   s.Level,
		Modules: s.Modules,
	})
	if err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	e.logEvent(Event{
		UserID:    userID,
		CourseID:  c.ID,
		EventType: EventCourseCreated,
		Data: map[string]any{
			"topic": topic,
			"level": string(c.Level),
		},
	})
	return c, nil
}

// Course returns one of the user's courses.
func (e *Engine) Course(ctx context.Context, userID, courseID string) (Course, error) {
	return e.store.GetCourse(ctx, userID, courseID)
}

// Courses returns the user's courses, newest first.
func (e *Engine) Courses(ctx context.Context, userID string) ([]Course, error) {
	return e.store.ListCourses(ctx, userID)
}

// Completions returns the lessons the user has completed in a course.
func (e *Engine) Completions(ctx context.Context, userID, courseID string) ([]LessonCompletion, error) {
	return e.store.ListLessonCompletions(ctx, userID, courseID)
}

// Lesson returns generated content for the lesson at (moduleIndex,
// topicIndex). Lessons of locked modules are not served.
func (e *Engine) Lesson(ctx context.Context, userID, courseID string, moduleIndex, topicIndex int) (json.RawMessage, error) {
	c, err := e.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	topic, ok := c.LessonTopic(moduleIndex, topicIndex)
	if !ok {
		return nil, fmt.Errorf("lesson %d/%d of course %s: %w", moduleIndex, topicIndex, courseID, ErrNotFound)
	}
	if StateOf(c.CompletedModules, moduleIndex) == StateLocked {
		return nil, fmt.Errorf("module %d of course %s: %w", moduleIndex, courseID, ErrForbidden)
	}
	if e.lessons == nil {
		return nil, &generator.GenerationError{Op: "generate lesson", Err: errors.New("no lesson generator configured")}
	}

	key := cache.Key("lesson", courseID, strconv.Itoa(moduleIndex), strconv.Itoa(topicIndex))
	if e.cache != nil {
		var cached json.RawMessage
		found, err := e.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			slog.Warn("lesson cache read failed", "key", key, "error", err)
		}
		if found {
			return cached, nil
		}
	}

	lesson, err := e.lessons.GenerateLesson(generator.WithUserID(ctx, userID), topic, string(c.Level))
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, lesson, e.lessonTTL); err != nil {
			slog.Warn("lesson cache write failed", "key", key, "error", err)
		}
	}
	return lesson, nil
}

func (e *Engine) logEvent(event Event) {
	if err := e.events.LogEvent(event); err != nil {
		slog.Warn("failed to log event",
			"type", event.EventType,
			"user_id", event.UserID,
			"course_id", event.CourseID,
			"error", err,
		)
	}
}
