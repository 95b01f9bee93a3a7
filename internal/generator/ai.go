package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultTimeout   = 45 * time.Second
	defaultMaxTokens = 4096
)

// Completer is the slice of the AI gateway the generator needs. *ai.Router
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// AIConfig holds dependencies for the AI-backed generator.
type AIConfig struct {
	AI        Completer
	Budget    ai.BudgetChecker // optional
	Timeout   time.Duration    // per call (default 45s)
	MaxTokens int              // per call (default 4096)
}

// AIGenerator implements Generator on top of the AI gateway.
type AIGenerator struct {
	ai        Completer
	budget    ai.BudgetChecker
	timeout   time.Duration
	maxTokens int
}

// NewAIGenerator creates a new AI-backed generator.
func NewAIGenerator(cfg AIConfig) *AIGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AIGenerator{
		ai:        cfg.AI,
		budget:    cfg.Budget,
		timeout:   timeout,
		maxTokens: maxTokens,
	}
}

func (g *AIGenerator) GenerateQuiz(ctx context.Context, topic string) ([]QuizQuestion, error) {
	prompt := fmt.Sprintf(`Write a diagnostic quiz of exactly %d multiple-choice questions on %q, ordered from easiest to hardest.
Return {"questions": [{"question": string, "options": [4 strings], "correct_index": 0-3, "weak_topic": string}]}.
weak_topic names the sub-topic a learner who misses the question should study.`, QuizSize, topic)

	var out struct {
		Questions []QuizQuestion `json:"questions"`
	}
	if err := g.complete(ctx, "generate quiz", ai.TaskDiagnostic, prompt, quizSchema, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (g *AIGenerator) GradeQuiz(ctx context.Context, topic string, questions []QuizQuestion, answers []int) (QuizGrade, error) {
	if len(answers) != len(questions) {
		return QuizGrade{}, &GenerationError{
			Op:  "grade quiz",
			Err: fmt.Errorf("got %d answers for %d questions", len(answers), len(questions)),
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Grade this diagnostic quiz on %q. Score is the number of correct answers (0-%d).\n", topic, QuizSize)
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n   correct: %s\n   learner: %s\n",
			i, q.Question, optionText(q.Options, q.CorrectIndex, "unknown"), optionText(q.Options, answers[i], "no answer"))
	}
	b.WriteString(`Return {"score": int, "weak_topics": [string], "feedback": string, "per_question": [{"index": int, "is_correct": bool, "weak_topic": string, "comment": string}]}.`)

	var grade QuizGrade
	if err := g.complete(ctx, "grade quiz", ai.TaskGrading, b.String(), gradeSchema, &grade); err != nil {
		return QuizGrade{}, err
	}
	return grade, nil
}

func (g *AIGenerator) GenerateSyllabus(ctx context.Context, topic string, score int, weakTopics []string) (SyllabusDraft, error) {
	weak := "none"
	if len(weakTopics) > 0 {
		weak = strings.Join(weakTopics, ", ")
	}
	prompt := fmt.Sprintf(`Design a personalised course on %q for a learner who scored %d/%d on a diagnostic quiz.
Weak areas: %s.
Return {"level": "Beginner"|"Intermediate"|"Advanced", "modules": [exactly %d modules]}.
Each module is {"title": string, "description": string, "topics": [3-5 strings], "layout": string,
"exit_quiz": [exactly 3 {"question": string, "options": [4 strings], "correct_index": 0-3, "review_topic": string, "explanation": string}]}.`,
		topic, score, QuizSize, weak, ModuleCount)

	var draft SyllabusDraft
	if err := g.complete(ctx, "generate syllabus", ai.TaskSyllabus, prompt, syllabusSchema, &draft); err != nil {
		return SyllabusDraft{}, err
	}
	return draft, nil
}

func (g *AIGenerator) GenerateLesson(ctx context.Context, topic, level string) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`Write a %s-level lesson on %q.
Return {"title": string, "sections": [{"heading": string, "body": string, "examples": [string]}], "summary": string}.`,
		strings.ToLower(level), topic)

	var lesson json.RawMessage
	if err := g.complete(ctx, "generate lesson", ai.TaskLesson, prompt, lessonSchema, &lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// complete runs one JSON-mode completion and decodes the validated result
// into dst.
func (g *AIGenerator) complete(ctx context.Context, op string, task ai.TaskType, prompt string, schema *gojsonschema.Schema, dst any) error {
	userID := UserIDFrom(ctx)
	if err := g.checkBudget(ctx, userID); err != nil {
		return &GenerationError{Op: op, Err: err, Retryable: !errors.Is(err, ErrBudgetExceeded)}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.ai.Complete(callCtx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: "You are a curriculum designer for an adaptive learning platform. Answer with JSON only."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: g.maxTokens,
		Task:      task,
		JSON:      true,
	})
	if err != nil {
		return &GenerationError{Op: op, Err: err, Retryable: !errors.Is(err, ai.ErrNoProvider)}
	}

	if userID != "" && g.budget != nil {
		if err := g.budget.Record(ctx, userID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "user_id", userID, "error", err)
		}
	}

	raw := extractJSON(resp.Content)
	if err := validate(schema, raw); err != nil {
		slog.Warn("generator returned malformed content",
			"op", op,
			"provider", resp.Provider,
			"error", err,
		)
		return &GenerationError{Op: op, Err: err}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &GenerationError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *AIGenerator) checkBudget(ctx context.Context, userID string) error {
	if g.budget == nil || userID == "" {
		return nil
	}
	ok, err := g.budget.Check(ctx, userID)
	if err != nil {
		return fmt.Errorf("check budget: %w", err)
	}
	if !ok {
		return ErrBudgetExceeded
	}
	return nil
}

func optionText(options []string, i int, fallback string) string {
	if i < 0 || i >= len(options) {
		return fallback
	}
	return options[i]
}
