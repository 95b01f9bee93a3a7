package course

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserStore persists learners.
type UserStore interface {
	// CreateUser returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// CourseStore persists courses. Lookups are scoped to the owning user; a
// course owned by someone else is reported as ErrNotFound.
type CourseStore interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, userID, courseID string) (Course, error)
	// ListCourses returns the user's courses, newest first.
	ListCourses(ctx context.Context, userID string) ([]Course, error)
	// AdvanceModule moves completed_modules from `from` to from+1 (capped at
	// the module count) only if it still equals `from`. The bool reports
	// whether this call made the change.
	AdvanceModule(ctx context.Context, userID, courseID string, from int) (Course, bool, error)
}

// AssessmentStore persists diagnostic results. Assessments are append-only.
type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a Assessment) (Assessment, error)
	// ListAssessments returns the user's assessments, newest first.
	ListAssessments(ctx context.Context, userID string) ([]Assessment, error)
}

// LessonStore persists lesson completions together with the XP they earn.
type LessonStore interface {
	GetLessonCompletion(ctx context.Context, userID, courseID string, moduleIndex, topicIndex int) (LessonCompletion, error)
	ListLessonCompletions(ctx context.Context, userID, courseID string) ([]LessonCompletion, error)
	// CompleteLesson atomically records c and applies its XP to the user.
	// When a completion for the same key already exists nothing changes and
	// the existing record is returned with false.
	CompleteLesson(ctx context.Context, c LessonCompletion) (LessonCompletion, Stats, bool, error)
}

// Store is the full persistence capability the engine depends on.
type Store interface {
	UserStore
	CourseStore
	AssessmentStore
	LessonStore
}

type completionKey struct {
	userID, courseID        string
	moduleIndex, topicIndex int
}

// MemoryStore is an in-memory, document-style Store.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	emails      map[string]string
	courses     map[string]*Course
	courseIDs   []string
	assessments []Assessment
	completions map[completionKey]LessonCompletion
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		emails:      make(map[string]string),
		courses:     make(map[string]*Course),
		completions: make(map[completionKey]LessonCompletion),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[u.Email]; taken {
		return User{}, fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = &u
	s.emails[u.Email] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return *u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return *s.users[id], nil
}

func (s *MemoryStore) CreateCourse(_ context.Context, c Course) (Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[c.UserID]; !ok {
		return Course{}, fmt.Errorf("course owner %s: %w", c.UserID, ErrNotFound)
	}
	if c.CompletedModules < 0 || c.CompletedModules > len(c.Modules) {
		return Course{}, fmt.Errorf("completed modules %d out of range: %w", c.CompletedModules, ErrValidation)
	}
	c.ID = uuid.NewString()
	c.Modules = slices.Clone(c.Modules)
	c.Progress = Progress(c.CompletedModules, len(c.Modules))
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.courses[c.ID] = &c
	s.courseIDs = append(s.courseIDs, c.ID)
	return c, nil
}

func (s *MemoryStore) GetCourse(_ context.Context, userID, courseID string) (Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[courseID]
	if !ok || c.UserID != userID {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return *c, nil
}

func (s *MemoryStore) ListCourses(_ context.Context, userID string) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	courses := []Course{}
	for i := len(s.courseIDs) - 1; i >= 0; i-- {
		if c := s.courses[s.courseIDs[i]]; c.UserID == userID {
			courses = append(courses, *c)
		}
	}
	return courses, nil
}

func (s *MemoryStore) AdvanceModule(_ context.Context, userID, courseID string, from int) (Course, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.courses[courseID]
	if !ok || c.UserID != userID {
		return Course{}, false, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	if c.CompletedModules != from {
		return *c, false, nil
	}
	c.CompletedModules = min(len(c.Modules), from+1)
	c.Progress = Progress(c.CompletedModules, len(c.Modules))
	return *c, true, nil
}

func (s *MemoryStore) CreateAssessment(_ context.Context, a Assessment) (Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[a.UserID]; !ok {
		return Assessment{}, fmt.Errorf("assessment owner %s: %w", a.UserID, ErrNotFound)
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.WeakTopics == nil {
		a.WeakTopics = []string{}
	}
	s.assessments = append(s.assessments, a)
	return a, nil
}

func (s *MemoryStore) ListAssessments(_ context.Context, userID string) ([]Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Assessment{}
	for i := len(s.assessments) - 1; i >= 0; i-- {
		if s.assessments[i].UserID == userID {
			out = append(out, s.assessments[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) GetLessonCompletion(_ context.Context, userID, courseID string, moduleIndex, topicIndex int) (LessonCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lc, ok := s.completions[completionKey{userID, courseID, moduleIndex, topicIndex}]
	if !ok {
		return LessonCompletion{}, fmt.Errorf("lesson completion: %w", ErrNotFound)
	}
	return lc, nil
}

func (s *MemoryStore) ListLessonCompletions(_ context.Context, userID, courseID string) ([]LessonCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []LessonCompletion{}
	for k, lc := range s.completions {
		if k.userID == userID && k.courseID == courseID {
			out = append(out, lc)
		}
	}
	slices.SortFunc(out, func(a, b LessonCompletion) int {
		if a.ModuleIndex != b.ModuleIndex {
			return a.ModuleIndex - b.ModuleIndex
		}
		return a.TopicIndex - b.TopicIndex
	})
	return out, nil
}

func (s *MemoryStore) CompleteLesson(_ context.Context, c LessonCompletion) (LessonCompletion, Stats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[c.UserID]
	if !ok {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("user %s: %w", c.UserID, ErrNotFound)
	}
	if course, ok := s.courses[c.CourseID]; !ok || course.UserID != c.UserID {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("course %s: %w", c.CourseID, ErrNotFound)
	}

	key := completionKey{c.UserID, c.CourseID, c.ModuleIndex, c.TopicIndex}
	if existing, done := s.completions[key]; done {
		return existing, u.Stats, false, nil
	}

	c.ID = uuid.NewString()
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}
	s.completions[key] = c
	u.Stats = ApplyLessonXP(u.Stats, c.XPEarned, c.CompletedAt)
	return c, u.Stats, true, nil
}
