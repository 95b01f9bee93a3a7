// Package generator produces structured course content (diagnostic quizzes,
// grades, syllabi and lessons) from an AI provider and validates every
// response against a JSON schema before handing it to callers.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// QuizSize is the number of questions in a diagnostic quiz.
	QuizSize = 5
	// ModuleCount is the number of modules in a generated syllabus.
	ModuleCount = 6
	// OptionCount is the number of options on every multiple-choice question.
	OptionCount = 4
)

// QuizQuestion is one diagnostic multiple-choice question.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	WeakTopic    string   `json:"weak_topic,omitempty"`
}

// QuestionResult is the grader's view of one answered question.
type QuestionResult struct {
	Index     int    `json:"index"`
	IsCorrect bool   `json:"is_correct"`
	WeakTopic string `json:"weak_topic,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// QuizGrade is the graded outcome of a diagnostic quiz.
type QuizGrade struct {
	Score       int              `json:"score"`
	WeakTopics  []string         `json:"weak_topics"`
	Feedback    string           `json:"feedback"`
	PerQuestion []QuestionResult `json:"per_question,omitempty"`
}

// ExitQuestion is a module exit-quiz question as drafted by the generator.
type ExitQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	ReviewTopic  string   `json:"review_topic,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
}

// ModuleDraft is one generated syllabus module. Every field may be missing;
// callers fill defaults.
type ModuleDraft struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Topics      []string       `json:"topics"`
	Layout      string         `json:"layout,omitempty"`
	ExitQuiz    []ExitQuestion `json:"exit_quiz"`
}

// SyllabusDraft is a generated syllabus before sanitation.
type SyllabusDraft struct {
	Level   string        `json:"level,omitempty"`
	Modules []ModuleDraft `json:"modules"`
}

// Generator is the content generation capability consumed by the course engine
// and the assessment flow.
type Generator interface {
	GenerateQuiz(ctx context.Context, topic string) ([]QuizQuestion, error)
	GradeQuiz(ctx context.Context, topic string, questions []QuizQuestion, answers []int) (QuizGrade, error)
	GenerateSyllabus(ctx context.Context, topic string, score int, weakTopics []string) (SyllabusDraft, error)
	GenerateLesson(ctx context.Context, topic, level string) (json.RawMessage, error)
}

// ErrBudgetExceeded is wrapped by a GenerationError when the user has used
// their daily token allowance.
var ErrBudgetExceeded = errors.New("daily AI token budget exceeded")

// GenerationError reports that the generator could not produce usable
// content. Retryable is set for transient causes such as timeouts and
// provider outages.
type GenerationError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a retryable GenerationError.
func IsRetryable(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Retryable
}

type userIDKey struct{}

// WithUserID tags ctx with the user a generation is made for, so token usage
// can be charged to them.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user set by WithUserID, or "".
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
