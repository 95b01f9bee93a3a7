package web

import (
	"time"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
)

// Views sent to the client never carry answer keys for quizzes that are
// still open.

type questionView struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type quizView struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Questions []questionView `json:"questions"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func newQuizView(p assessment.Pending) quizView {
	questions := make([]questionView, len(p.Questions))
	for i, q := range p.Questions {
		questions[i] = questionView{Question: q.Question, Options: q.Options}
	}
	return quizView{ID: p.ID, Topic: p.Topic, Questions: questions, ExpiresAt: p.ExpiresAt}
}

type moduleView struct {
	Index       int                `json:"index"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Topics      []string           `json:"topics"`
	Layout      string             `json:"layout,omitempty"`
	State       course.ModuleState `json:"state"`
	ExitQuiz    []questionView     `json:"exit_quiz"`
}

type lessonRef struct {
	ModuleIndex int `json:"module_index"`
	TopicIndex  int `json:"topic_index"`
}

type courseView struct {
	ID               string       `json:"id"`
	Topic            string       `json:"topic"`
	Level            course.Level `json:"level"`
	CompletedModules int          `json:"completed_modules"`
	Progress         int          `json:"progress"`
	CreatedAt        time.Time    `json:"created_at"`
	Modules          []moduleView `json:"modules"`
	CompletedLessons []lessonRef  `json:"completed_lessons,omitempty"`
}

func newCourseView(c course.Course) courseView {
	states := course.ModuleStates(c)
	modules := make([]moduleView, len(c.Modules))
	for i, m := range c.Modules {
		quiz := make([]questionView, len(m.ExitQuiz))
		for j, q := range m.ExitQuiz {
			quiz[j] = questionView{Question: q.Question, Options: q.Options}
		}
		modules[i] = moduleView{
			Index:       i,
			Title:       m.Title,
			Description: m.Description,
			Topics:      m.Topics,
			Layout:      m.Layout,
			State:       states[i],
			ExitQuiz:    quiz,
		}
	}
	return courseView{
		ID:               c.ID,
		Topic:            c.Topic,
		Level:            c.Level,
		CompletedModules: c.CompletedModules,
		Progress:         c.Progress,
		CreatedAt:        c.CreatedAt,
		Modules:          modules,
	}
}

type outcomeView struct {
	Assessment course.Assessment `json:"assessment"`
	Course     courseView        `json:"course"`
}

type sessionView struct {
	User      course.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}
