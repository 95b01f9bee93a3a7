// Package course implements the course progress engine: syllabus structure,
// sequential module unlocking through exit quizzes, and XP/streak accounting
// for completed lessons.
package course

import (
	"math"
	"time"
)

// Level is the difficulty a course is pitched at.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// Question is one multiple-choice exit-quiz question.
type Question struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	ReviewTopic  string   `json:"review_topic,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Module is one unit of a course syllabus.
type Module struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Topics      []string   `json:"topics"`
	Layout      string     `json:"layout,omitempty"`
	ExitQuiz    []Question `json:"exit_quiz"`
}

// Course is a learner's personalised syllabus and their progress through it.
type Course struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Topic            string    `json:"topic"`
	Level            Level     `json:"level"`
	Modules          []Module  `json:"modules"`
	CompletedModules int       `json:"completed_modules"`
	Progress         int       `json:"progress"`
	CreatedAt        time.Time `json:"created_at"`
}

// LessonTopic returns the topic at (moduleIndex, topicIndex), or false when the
// pair does not resolve.
func (c Course) LessonTopic(moduleIndex, topicIndex int) (string, bool) {
	if moduleIndex < 0 || moduleIndex >= len(c.Modules) {
		return "", false
	}
	topics := c.Modules[moduleIndex].Topics
	if topicIndex < 0 || topicIndex >= len(topics) {
		return "", false
	}
	return topics[topicIndex], true
}

// Progress returns the percentage of completed modules, rounded half away
// from zero. A course without modules has no progress.
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Stats are the gamification counters on a user.
type Stats struct {
	TotalXP    int `json:"total_xp"`
	StreakDays int `json:"streak_days"`
	// LastLessonDate is midnight UTC of the last XP-earning day.
	LastLessonDate *time.Time `json:"last_lesson_date"`
}

// User is a registered learner.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	Stats
}

// QuestionAnalysis is the per-question breakdown of a diagnostic quiz.
type QuestionAnalysis struct {
	Question  string `json:"question"`
	Selected  int    `json:"selected"`
	Correct   int    `json:"correct"`
	IsCorrect bool   `json:"is_correct"`
	WeakTopic string `json:"weak_topic,omitempty"`
}

// Assessment is an immutable diagnostic quiz result.
type Assessment struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Topic      string             `json:"topic"`
	Score      int                `json:"score"`
	Feedback   string             `json:"feedback"`
	WeakTopics []string           `json:"weak_topics"`
	Analysis   []QuestionAnalysis `json:"analysis,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// LessonCompletion records that a user earned XP for one lesson. At most one
// exists per (user, course, module, topic).
type LessonCompletion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	ModuleIndex int       `json:"module_index"`
	TopicIndex  int       `json:"topic_index"`
	XPEarned    int       `json:"xp_earned"`
	CompletedAt time.Time `json:"completed_at"`
}
