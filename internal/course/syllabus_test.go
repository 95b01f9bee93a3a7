package course_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
)

type syllabusFunc func(ctx context.Context, topic string, score int, weak []string) (generator.SyllabusDraft, error)

func (f syllabusFunc) GenerateSyllabus(ctx context.Context, topic string, score int, weak []string) (generator.SyllabusDraft, error) {
	return f(ctx, topic, score, weak)
}

func staticSyllabus(draft generator.SyllabusDraft) syllabusFunc {
	return func(context.Context, string, int, []string) (generator.SyllabusDraft, error) {
		return draft, nil
	}
}

func exitQuestion(correct int) generator.ExitQuestion {
	return generator.ExitQuestion{
		Question:     "q",
		Options:      []string{"a", "b", "c", "d"},
		CorrectIndex: correct,
		ReviewTopic:  " review ",
	}
}

func fullDraft(level string) generator.SyllabusDraft {
	d := generator.SyllabusDraft{Level: level}
	for i := 0; i < generator.ModuleCount; i++ {
		d.Modules = append(d.Modules, generator.ModuleDraft{
			Title:       fmt.Sprintf("Module %c", 'A'+i),
			Description: "about",
			Topics:      []string{"t1", "t2", "t3"},
			ExitQuiz:    []generator.ExitQuestion{exitQuestion(1), exitQuestion(2), exitQuestion(3)},
		})
	}
	return d
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  course.Level
	}{
		{0, course.LevelBeginner},
		{2, course.LevelBeginner},
		{3, course.LevelIntermediate},
		{4, course.LevelIntermediate},
		{5, course.LevelAdvanced},
	}
	for _, tt := range tests {
		if got := course.LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestBuildSyllabus(t *testing.T) {
	var gotTopic string
	var gotScore int
	var gotWeak []string
	gen := syllabusFunc(func(_ context.Context, topic string, score int, weak []string) (generator.SyllabusDraft, error) {
		gotTopic, gotScore, gotWeak = topic, score, weak
		return fullDraft("advanced"), nil
	})

	s, err := course.BuildSyllabus(context.Background(), gen, "Algebra", 1, []string{"factoring"})
	if err != nil {
		t.Fatalf("BuildSyllabus() error = %v", err)
	}
	if gotTopic != "Algebra" || gotScore != 1 || len(gotWeak) != 1 {
		t.Errorf("generator called with (%q, %d, %v)", gotTopic, gotScore, gotWeak)
	}
	if s.Level != course.LevelAdvanced {
		t.Errorf("Level = %s, want the generator's level", s.Level)
	}
	if len(s.Modules) != 6 {
		t.Fatalf("len(Modules) = %d, want 6", len(s.Modules))
	}
	q := s.Modules[0].ExitQuiz
	if q[0].CorrectIndex != 1 || q[2].CorrectIndex != 3 || q[0].ReviewTopic != "review" {
		t.Errorf("exit quiz not carried over: %+v", q)
	}
}

func TestBuildSyllabus_DerivesLevel(t *testing.T) {
	for _, level := range []string{"", "Expert"} {
		for score, want := range map[int]course.Level{2: course.LevelBeginner, 4: course.LevelIntermediate, 5: course.LevelAdvanced} {
			s, err := course.BuildSyllabus(context.Background(), staticSyllabus(fullDraft(level)), "Algebra", score, nil)
			if err != nil {
				t.Fatalf("BuildSyllabus() error = %v", err)
			}
			if s.Level != want {
				t.Errorf("level %q score %d: Level = %s, want %s", level, score, s.Level, want)
			}
		}
	}
}

func TestBuildSyllabus_SanitizesMissingFields(t *testing.T) {
	draft := fullDraft("Beginner")
	draft.Modules[1] = generator.ModuleDraft{}
	draft.Modules[2].Topics = []string{"", " only "}
	draft.Modules[2].ExitQuiz = draft.Modules[2].ExitQuiz[:2]
	draft.Modules[3].ExitQuiz = nil

	s, err := course.BuildSyllabus(context.Background(), staticSyllabus(draft), "Algebra", 0, nil)
	if err != nil {
		t.Fatalf("BuildSyllabus() error = %v", err)
	}

	empty := s.Modules[1]
	if empty.Title != "Module 2" || empty.Description != "" || empty.Topics == nil || len(empty.Topics) != 0 {
		t.Errorf("empty module = %+v, want defaults", empty)
	}
	if !course.ValidExitQuiz(empty.ExitQuiz) || empty.ExitQuiz[0].ReviewTopic != "Module 2" {
		t.Errorf("empty module quiz = %+v, want fallback from title", empty.ExitQuiz)
	}

	short := s.Modules[2]
	if len(short.Topics) != 1 || short.Topics[0] != "only" {
		t.Errorf("Topics = %q, want [only]", short.Topics)
	}
	if len(short.ExitQuiz) != 3 || short.ExitQuiz[0].CorrectIndex != 0 || short.ExitQuiz[2].ReviewTopic != "only" {
		t.Errorf("short quiz should be replaced by fallback, got %+v", short.ExitQuiz)
	}

	if !course.ValidExitQuiz(s.Modules[3].ExitQuiz) {
		t.Error("missing quiz should be replaced by fallback")
	}
	for i, m := range s.Modules {
		if !course.ValidExitQuiz(m.ExitQuiz) {
			t.Errorf("module %d has an invalid quiz", i)
		}
	}
}

func TestBuildSyllabus_MalformedIsGenerationError(t *testing.T) {
	tests := []struct {
		name  string
		draft func() generator.SyllabusDraft
	}{
		{"five modules", func() generator.SyllabusDraft {
			d := fullDraft("")
			d.Modules = d.Modules[:5]
			return d
		}},
		{"question with three options", func() generator.SyllabusDraft {
			d := fullDraft("")
			d.Modules[4].ExitQuiz[1].Options = []string{"a", "b", "c"}
			return d
		}},
		{"correct index out of range", func() generator.SyllabusDraft {
			d := fullDraft("")
			d.Modules[0].ExitQuiz[0].CorrectIndex = 7
			return d
		}},
		{"question without text", func() generator.SyllabusDraft {
			d := fullDraft("")
			d.Modules[5].ExitQuiz[2].Question = ""
			return d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := course.BuildSyllabus(context.Background(), staticSyllabus(tt.draft()), "Algebra", 3, nil)
			var genErr *generator.GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("error = %v, want *GenerationError", err)
			}
		})
	}
}

func TestBuildSyllabus_PropagatesGeneratorError(t *testing.T) {
	want := &generator.GenerationError{Op: "generate syllabus", Err: errors.New("timeout"), Retryable: true}
	gen := syllabusFunc(func(context.Context, string, int, []string) (generator.SyllabusDraft, error) {
		return generator.SyllabusDraft{}, want
	})

	_, err := course.BuildSyllabus(context.Background(), gen, "Algebra", 3, nil)
	if !errors.Is(err, want) {
		t.Errorf("error = %v, want the generator error", err)
	}
	if !generator.IsRetryable(err) {
		t.Error("retryable flag should survive")
	}
}
