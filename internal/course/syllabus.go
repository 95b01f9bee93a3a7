package course

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-course/internal/generator"
)

// SyllabusGenerator drafts a syllabus from a diagnostic result.
type SyllabusGenerator interface {
	GenerateSyllabus(ctx context.Context, topic string, score int, weakTopics []string) (generator.SyllabusDraft, error)
}

// Syllabus is a sanitised, ready-to-store course outline.
type Syllabus struct {
	Level   Level    `json:"level"`
	Modules []Module `json:"modules"`
}

// LevelForScore maps a diagnostic score out of 5 to a course level.
func LevelForScore(score int) Level {
	switch {
	case score < 3:
		return LevelBeginner
	case score < 5:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}

// ParseLevel matches s to a known level, ignoring case and surrounding space.
func ParseLevel(s string) (Level, bool) {
	for _, l := range []Level{LevelBeginner, LevelIntermediate, LevelAdvanced} {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, true
		}
	}
	return "", false
}

// BuildSyllabus requests a six-module syllabus from gen and fills whatever
// the draft left out: titles, descriptions, topic lists, unusable exit quizzes
// and an unknown level.
func BuildSyllabus(ctx context.Context, gen SyllabusGenerator, topic string, score int, weakTopics []string) (Syllabus, error) {
	draft, err := gen.GenerateSyllabus(ctx, topic, score, weakTopics)
	if err != nil {
		return Syllabus{}, err
	}
	if len(draft.Modules) != generator.ModuleCount {
		return Syllabus{}, &generator.GenerationError{
			Op:  "build syllabus",
			Err: fmt.Errorf("got %d modules, want %d", len(draft.Modules), generator.ModuleCount),
		}
	}

	level, ok := ParseLevel(draft.Level)
	if !ok {
		level = LevelForScore(score)
	}

	modules := make([]Module, len(draft.Modules))
	for i, d := range draft.Modules {
		if err := checkDraftQuestions(d.ExitQuiz); err != nil {
			return Syllabus{}, &generator.GenerationError{
				Op:  "build syllabus",
				Err: fmt.Errorf("module %d: %w", i, err),
			}
		}
		modules[i] = sanitizeModule(i, d)
	}
	return Syllabus{Level: level, Modules: modules}, nil
}

// checkDraftQuestions rejects exit questions that cannot be indexed safely.
// A quiz of the wrong length is not an error; it is replaced downstream.
func checkDraftQuestions(quiz []generator.ExitQuestion) error {
	for j, q := range quiz {
		switch {
		case strings.TrimSpace(q.Question) == "":
			return fmt.Errorf("exit question %d has no text", j)
		case len(q.Options) != OptionCount:
			return fmt.Errorf("exit question %d has %d options, want %d", j, len(q.Options), OptionCount)
		case q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount:
			return fmt.Errorf("exit question %d has correct index %d", j, q.CorrectIndex)
		}
	}
	return nil
}

func sanitizeModule(i int, d generator.ModuleDraft) Module {
	m := Module{
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		Topics:      []string{},
		Layout:      strings.TrimSpace(d.Layout),
	}
	if m.Title == "" {
		m.Title = fmt.Sprintf("Module %d", i+1)
	}
	for _, t := range d.Topics {
		if t = strings.TrimSpace(t); t != "" {
			m.Topics = append(m.Topics, t)
		}
	}

	quiz := make([]Question, len(d.ExitQuiz))
	for j, q := range d.ExitQuiz {
		quiz[j] = Question{
			Question:     q.Question,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			ReviewTopic:  strings.TrimSpace(q.ReviewTopic),
			Explanation:  strings.TrimSpace(q.Explanation),
		}
	}
	m.ExitQuiz = quiz
	m.ExitQuiz = NormalizeExitQuiz(m)
	return m
}
