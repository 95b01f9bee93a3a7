package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/generator"
)

func quizJSON(n, options int) string {
	type q struct {
		Question     string   `json:"question"`
		Options      []string `json:"options"`
		CorrectIndex int      `json:"correct_index"`
		WeakTopic    string   `json:"weak_topic"`
	}
	out := struct {
		Questions []q `json:"questions"`
	}{}
	for i := 0; i < n; i++ {
		opts := make([]string, options)
		for j := range opts {
			opts[j] = fmt.Sprintf("option %d", j)
		}
		out.Questions = append(out.Questions, q{
			Question:     fmt.Sprintf("Question %d?", i+1),
			Options:      opts,
			CorrectIndex: i % 4,
			WeakTopic:    fmt.Sprintf("topic-%d", i),
		})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func syllabusJSON(modules int) string {
	draft := generator.SyllabusDraft{Level: "Intermediate"}
	for i := 0; i < modules; i++ {
		draft.Modules = append(draft.Modules, generator.ModuleDraft{
			Title:       fmt.Sprintf("Module %d", i+1),
			Description: "desc",
			Topics:      []string{"a", "b", "c"},
			ExitQuiz: []generator.ExitQuestion{
				{Question: "q1", Options: []string{"w", "x", "y", "z"}, CorrectIndex: 0},
				{Question: "q2", Options: []string{"w", "x", "y", "z"}, CorrectIndex: 1},
				{Question: "q3", Options: []string{"w", "x", "y", "z"}, CorrectIndex: 2},
			},
		})
	}
	b, _ := json.Marshal(draft)
	return string(b)
}

func newGenerator(responses ...string) (*generator.AIGenerator, *ai.MockProvider) {
	mock := ai.NewMockProvider(responses...)
	router := ai.NewRouter()
	router.Register("mock", mock)
	return generator.NewAIGenerator(generator.AIConfig{AI: router}), mock
}

func assertGenerationError(t *testing.T, err error, retryable bool) {
	t.Helper()
	var genErr *generator.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	if genErr.Retryable != retryable {
		t.Errorf("Retryable = %v, want %v (err: %v)", genErr.Retryable, retryable, err)
	}
}

func TestGenerateQuiz(t *testing.T) {
	gen, mock := newGenerator("```json\n" + quizJSON(5, 4) + "\n```")

	questions, err := gen.GenerateQuiz(context.Background(), "Algebra")
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}
	if len(questions) != generator.QuizSize {
		t.Fatalf("len(questions) = %d, want %d", len(questions), generator.QuizSize)
	}
	if questions[1].CorrectIndex != 1 || questions[0].WeakTopic != "topic-0" {
		t.Errorf("unexpected decode: %+v", questions[:2])
	}

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("provider was not called")
	}
	if !req.JSON {
		t.Error("request should use JSON mode")
	}
	if req.Task != ai.TaskDiagnostic {
		t.Errorf("Task = %v, want diagnostic", req.Task)
	}
	if !strings.Contains(req.Messages[len(req.Messages)-1].Content, "Algebra") {
		t.Error("prompt should mention the topic")
	}
}

func TestGenerateQuiz_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"three options", quizJSON(5, 3)},
		{"four questions", quizJSON(4, 4)},
		{"six questions", quizJSON(6, 4)},
		{"correct index out of range", strings.Replace(quizJSON(5, 4), `"correct_index":0`, `"correct_index":4`, 1)},
		{"empty question", strings.Replace(quizJSON(5, 4), `"Question 1?"`, `""`, 1)},
		{"not json", "Sure! Here is your quiz."},
		{"wrong shape", `{"quiz": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := newGenerator(tt.content)
			questions, err := gen.GenerateQuiz(context.Background(), "Algebra")
			if questions != nil {
				t.Errorf("questions = %v, want nil", questions)
			}
			assertGenerationError(t, err, false)
		})
	}
}

func TestGenerate_ProviderFailureIsRetryable(t *testing.T) {
	router := ai.NewRouter()
	router.Register("down", &ai.MockProvider{Err: &ai.ErrProviderUnavailable{Provider: "down", Status: 503, Err: errors.New("overloaded")}})
	gen := generator.NewAIGenerator(generator.AIConfig{AI: router})

	_, err := gen.GenerateQuiz(context.Background(), "Algebra")
	assertGenerationError(t, err, true)
	if !generator.IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestGenerate_NoProvider(t *testing.T) {
	gen := generator.NewAIGenerator(generator.AIConfig{AI: ai.NewRouter()})

	_, err := gen.GenerateLesson(context.Background(), "Algebra", "Beginner")
	assertGenerationError(t, err, false)
	if !errors.Is(err, ai.ErrNoProvider) {
		t.Errorf("error should wrap ErrNoProvider, got %v", err)
	}
}

type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ ai.CompletionRequest) (ai.CompletionResponse, error) {
	<-ctx.Done()
	return ai.CompletionResponse{}, ctx.Err()
}

func TestGenerate_Timeout(t *testing.T) {
	gen := generator.NewAIGenerator(generator.AIConfig{
		AI:      blockingCompleter{},
		Timeout: 20 * time.Millisecond,
	})

	start := time.Now()
	_, err := gen.GenerateSyllabus(context.Background(), "Algebra", 3, nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("GenerateSyllabus() took %s, want bounded by timeout", elapsed)
	}
	assertGenerationError(t, err, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded, got %v", err)
	}
}

func TestGenerate_Budget(t *testing.T) {
	budget := ai.NewInMemoryBudget(100)
	mock := ai.NewMockProvider(`{"title": "Intro", "sections": [{"heading": "h", "body": "b"}]}`)
	router := ai.NewRouter()
	router.Register("mock", mock)
	gen := generator.NewAIGenerator(generator.AIConfig{AI: router, Budget: budget})

	ctx := generator.WithUserID(context.Background(), "user-1")
	if _, err := gen.GenerateLesson(ctx, "Algebra", "Beginner"); err != nil {
		t.Fatalf("GenerateLesson() error = %v", err)
	}
	if budget.Used("user-1") == 0 {
		t.Error("token usage should be recorded for the user")
	}

	_ = budget.Record(ctx, "user-1", 1000)
	calls := len(mock.Requests())

	_, err := gen.GenerateLesson(ctx, "Algebra", "Beginner")
	assertGenerationError(t, err, false)
	if !errors.Is(err, generator.ErrBudgetExceeded) {
		t.Errorf("error should wrap ErrBudgetExceeded, got %v", err)
	}
	if len(mock.Requests()) != calls {
		t.Error("provider should not be called once the budget is exhausted")
	}

	if _, err := gen.GenerateLesson(context.Background(), "Algebra", "Beginner"); err != nil {
		t.Errorf("anonymous generation should not be budgeted, got %v", err)
	}
}

func TestGradeQuiz(t *testing.T) {
	gen, mock := newGenerator(`{"score": 3, "weak_topics": ["fractions"], "feedback": "Solid start.", "per_question": [{"index": 0, "is_correct": true}]}`)
	questions := []generator.QuizQuestion{
		{Question: "1+1?", Options: []string{"2", "3", "4", "5"}, CorrectIndex: 0},
	}

	grade, err := gen.GradeQuiz(context.Background(), "Arithmetic", questions, []int{0})
	if err != nil {
		t.Fatalf("GradeQuiz() error = %v", err)
	}
	if grade.Score != 3 || grade.Feedback != "Solid start." {
		t.Errorf("grade = %+v", grade)
	}
	if len(grade.WeakTopics) != 1 || grade.WeakTopics[0] != "fractions" {
		t.Errorf("WeakTopics = %v, want [fractions]", grade.WeakTopics)
	}
	if req := mock.LastRequest(); req.Task != ai.TaskGrading {
		t.Errorf("Task = %v, want grading", req.Task)
	}
}

func TestGradeQuiz_Invalid(t *testing.T) {
	questions := []generator.QuizQuestion{
		{Question: "1+1?", Options: []string{"2", "3", "4", "5"}, CorrectIndex: 0},
	}

	t.Run("answer count mismatch", func(t *testing.T) {
		gen, mock := newGenerator(`{"score": 1, "feedback": "ok"}`)
		_, err := gen.GradeQuiz(context.Background(), "Arithmetic", questions, []int{0, 1})
		assertGenerationError(t, err, false)
		if len(mock.Requests()) != 0 {
			t.Error("provider should not be called")
		}
	})

	t.Run("score out of range", func(t *testing.T) {
		gen, _ := newGenerator(`{"score": 6, "feedback": "ok"}`)
		_, err := gen.GradeQuiz(context.Background(), "Arithmetic", questions, []int{0})
		assertGenerationError(t, err, false)
	})

	t.Run("missing feedback", func(t *testing.T) {
		gen, _ := newGenerator(`{"score": 1}`)
		_, err := gen.GradeQuiz(context.Background(), "Arithmetic", questions, []int{0})
		assertGenerationError(t, err, false)
	})
}

func TestGenerateSyllabus(t *testing.T) {
	gen, mock := newGenerator(syllabusJSON(6))

	draft, err := gen.GenerateSyllabus(context.Background(), "Algebra", 4, []string{"factoring"})
	if err != nil {
		t.Fatalf("GenerateSyllabus() error = %v", err)
	}
	if len(draft.Modules) != generator.ModuleCount {
		t.Fatalf("len(Modules) = %d, want %d", len(draft.Modules), generator.ModuleCount)
	}
	if draft.Level != "Intermediate" {
		t.Errorf("Level = %q, want Intermediate", draft.Level)
	}
	if !strings.Contains(mock.LastRequest().Messages[1].Content, "factoring") {
		t.Error("prompt should mention weak topics")
	}
}

func TestGenerateSyllabus_NullableModuleFields(t *testing.T) {
	modules := make([]string, generator.ModuleCount)
	for i := range modules {
		modules[i] = `{"title": null, "description": null, "topics": null, "exit_quiz": null}`
	}
	gen, _ := newGenerator(`{"modules": [` + strings.Join(modules, ",") + `]}`)

	draft, err := gen.GenerateSyllabus(context.Background(), "Algebra", 0, nil)
	if err != nil {
		t.Fatalf("GenerateSyllabus() error = %v", err)
	}
	if draft.Modules[0].Title != "" || draft.Modules[0].ExitQuiz != nil {
		t.Errorf("module = %+v, want zero values", draft.Modules[0])
	}
}

func TestGenerateSyllabus_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"five modules", syllabusJSON(5)},
		{"seven modules", syllabusJSON(7)},
		{"exit question with three options", strings.Replace(syllabusJSON(6), `["w","x","y","z"]`, `["w","x","y"]`, 1)},
		{"exit question without text", strings.Replace(syllabusJSON(6), `"question":"q1"`, `"question":""`, 1)},
		{"modules not an array", `{"modules": "six"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := newGenerator(tt.content)
			_, err := gen.GenerateSyllabus(context.Background(), "Algebra", 2, nil)
			assertGenerationError(t, err, false)
		})
	}
}

func TestGenerateLesson(t *testing.T) {
	gen, mock := newGenerator(`Here you go: {"title": "Linear equations", "sections": [{"heading": "Intro", "body": "..."}], "summary": "s"}`)

	lesson, err := gen.GenerateLesson(context.Background(), "Linear equations", "Beginner")
	if err != nil {
		t.Fatalf("GenerateLesson() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(lesson, &decoded); err != nil {
		t.Fatalf("lesson is not valid JSON: %v", err)
	}
	if decoded["title"] != "Linear equations" {
		t.Errorf("title = %v", decoded["title"])
	}
	if req := mock.LastRequest(); req.Task != ai.TaskLesson {
		t.Errorf("Task = %v, want lesson", req.Task)
	}
}

func TestGenerateLesson_MissingSections(t *testing.T) {
	gen, _ := newGenerator(`{"title": "Linear equations", "sections": []}`)
	_, err := gen.GenerateLesson(context.Background(), "Linear equations", "Beginner")
	assertGenerationError(t, err, false)
}

func TestUserIDContext(t *testing.T) {
	if got := generator.UserIDFrom(context.Background()); got != "" {
		t.Errorf("UserIDFrom(empty) = %q, want empty", got)
	}
	ctx := generator.WithUserID(context.Background(), "u-42")
	if got := generator.UserIDFrom(ctx); got != "u-42" {
		t.Errorf("UserIDFrom() = %q, want u-42", got)
	}
}
