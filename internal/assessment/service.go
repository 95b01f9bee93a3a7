// Package assessment runs the diagnostic quiz that opens every course: it
// hands out a generated quiz, grades the answers and turns the result into a
// stored assessment and a new course.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
)

const defaultPendingTTL = 30 * time.Minute

// Generator is the part of the content generator the diagnostic flow uses.
type Generator interface {
	course.SyllabusGenerator
	GenerateQuiz(ctx context.Context, topic string) ([]generator.QuizQuestion, error)
	GradeQuiz(ctx context.Context, topic string, questions []generator.QuizQuestion, answers []int) (generator.QuizGrade, error)
}

// TopicNormalizer canonicalises learner-entered topics. *catalog.Catalog
// satisfies it.
type TopicNormalizer interface {
	Normalize(topic string) (string, error)
}

// CourseCreator stores a course built from a syllabus. *course.Engine
// satisfies it.
type CourseCreator interface {
	CreateCourse(ctx context.Context, userID, topic string, s course.Syllabus) (course.Course, error)
}

// Config holds dependencies for the assessment service.
type Config struct {
	Generator Generator
	Courses   CourseCreator
	Store     course.AssessmentStore
	Pending   PendingStore     // optional (default in-memory)
	Topics    TopicNormalizer  // optional (default empty catalog)
	TTL       time.Duration    // pending quiz lifetime (default 30 minutes)
	Now       func() time.Time // clock (default time.Now)
}

// Service runs diagnostic assessments.
type Service struct {
	gen     Generator
	courses CourseCreator
	store   course.AssessmentStore
	pending PendingStore
	topics  TopicNormalizer
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a new assessment service.
func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pending := cfg.Pending
	if pending == nil {
		pending = NewMemoryPendingStore(now)
	}
	topics := cfg.Topics
	if topics == nil {
		topics = catalog.New()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Service{
		gen:     cfg.Generator,
		courses: cfg.Courses,
		store:   cfg.Store,
		pending: pending,
		topics:  topics,
		ttl:     ttl,
		now:     now,
	}
}

// Outcome is the result of a submitted diagnostic quiz.
type Outcome struct {
	Assessment course.Assessment `json:"assessment"`
	Course     course.Course     `json:"course"`
}

// Start generates a diagnostic quiz on topic and keeps it until the learner
// submits it or it expires.
func (s *Service) Start(ctx context.Context, userID, topic string) (Pending, error) {
	name, err := s.topics.Normalize(topic)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidTopic) {
			return Pending{}, fmt.Errorf("%w: %v", course.ErrValidation, err)
		}
		return Pending{}, err
	}

	questions, err := s.gen.GenerateQuiz(generator.WithUserID(ctx, userID), name)
	if err != nil {
		return Pending{}, err
	}
	if len(questions) != generator.QuizSize {
		return Pending{}, &generator.GenerationError{
			Op:  "generate quiz",
			Err: fmt.Errorf("got %d questions, want %d", len(questions), generator.QuizSize),
		}
	}

	p := Pending{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     name,
		Questions: questions,
		CreatedAt: s.now(),
	}
	if err := s.pending.Put(ctx, p, s.ttl); err != nil {
		return Pending{}, fmt.Errorf("store pending assessment: %w", err)
	}
	p.ExpiresAt = p.CreatedAt.Add(s.ttl)

	slog.Info("assessment started", "user_id", userID, "assessment_id", p.ID, "topic", name)
	return p, nil
}

// Submit grades the answers to a pending quiz, stores the assessment and
// creates the course it leads to. The quiz is consumed on success; a rejected
// or failed submission leaves it available for another try.
func (s *Service) Submit(ctx context.Context, userID, pendingID string, answers []int) (Outcome, error) {
	p, err := s.pending.Take(ctx, userID, pendingID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.submit(ctx, p, answers)
	if err != nil {
		s.restore(ctx, p)
		return Outcome{}, err
	}
	return out, nil
}

func (s *Service) submit(ctx context.Context, p Pending, answers []int) (Outcome, error) {
	if len(answers) != len(p.Questions) {
		return Outcome{}, fmt.Errorf("got %d answers for %d questions: %w", len(answers), len(p.Questions), course.ErrValidation)
	}
	for i, a := range answers {
		if a != course.Unanswered && (a < 0 || a >= len(p.Questions[i].Options)) {
			return Outcome{}, fmt.Errorf("answer %d: option %d does not exist: %w", i, a, course.ErrValidation)
		}
	}

	genCtx := generator.WithUserID(ctx, p.UserID)
	grade, err := s.gen.GradeQuiz(genCtx, p.Topic, p.Questions, answers)
	if err != nil {
		return Outcome{}, err
	}

	analysis, score := analyse(p.Questions, answers)
	weak := weakTopics(grade.WeakTopics, analysis)

	syllabus, err := course.BuildSyllabus(genCtx, s.gen, p.Topic, score, weak)
	if err != nil {
		return Outcome{}, err
	}

	a, err := s.store.CreateAssessment(ctx, course.Assessment{
		UserID:     p.UserID,
		Topic:      p.Topic,
		Score:      score,
		Feedback:   grade.Feedback,
		WeakTopics: weak,
		Analysis:   analysis,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("store assessment: %w", err)
	}

	c, err := s.courses.CreateCourse(ctx, p.UserID, p.Topic, syllabus)
	if err != nil {
		return Outcome{}, err
	}

	slog.Info("assessment submitted",
		"user_id", p.UserID,
		"assessment_id", a.ID,
		"course_id", c.ID,
		"score", score,
		"level", string(c.Level),
	)
	return Outcome{Assessment: a, Course: c}, nil
}

// restore puts a quiz back after a failed submission, keeping its original
// expiry.
func (s *Service) restore(ctx context.Context, p Pending) {
	ttl := p.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.pending.Put(ctx, p, ttl); err != nil {
		slog.Warn("failed to restore pending assessment", "assessment_id", p.ID, "user_id", p.UserID, "error", err)
	}
}

// History returns the user's assessments, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]course.Assessment, error) {
	return s.store.ListAssessments(ctx, userID)
}

// analyse compares answers with the answer key. The local count is the score
// of record.
func analyse(questions []generator.QuizQuestion, answers []int) ([]course.QuestionAnalysis, int) {
	analysis := make([]course.QuestionAnalysis, len(questions))
	score := 0
	for i, q := range questions {
		correct := answers[i] == q.CorrectIndex
		if correct {
			score++
		}
		analysis[i] = course.QuestionAnalysis{
			Question:  q.Question,
			Selected:  answers[i],
			Correct:   q.CorrectIndex,
			IsCorrect: correct,
			WeakTopic: strings.TrimSpace(q.WeakTopic),
		}
	}
	return analysis, score
}

// weakTopics merges the grader's weak topics with those of missed questions,
// keeping first-seen order.
func weakTopics(graded []string, analysis []course.QuestionAnalysis) []string {
	seen := make(map[string]bool)
	topics := []string{}
	add := func(t string) {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			return
		}
		seen[key] = true
		topics = append(topics, t)
	}
	for _, t := range graded {
		add(t)
	}
	for _, a := range analysis {
		if !a.IsCorrect {
			add(a.WeakTopic)
		}
	}
	return topics
}
