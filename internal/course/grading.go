package course

import (
	"fmt"
	"strings"
)

const (
	// ExitQuizSize is the number of questions on a module exit quiz.
	ExitQuizSize = 3
	// OptionCount is the number of options on an exit-quiz question.
	OptionCount = 4
	// Unanswered marks a question the learner skipped.
	Unanswered = -1

	maxReviewTopics = 3
)

// Mistake describes one missed exit-quiz question.
type Mistake struct {
	Index        int    `json:"index"`
	Question     string `json:"question"`
	Selected     int    `json:"selected"`
	CorrectIndex int    `json:"-"` // server-side only
	ReviewTopic  string `json:"review_topic,omitempty"`
	Explanation  string `json:"explanation,omitempty"`
}

// Grade is the outcome of grading an exit quiz.
type Grade struct {
	CorrectCount int       `json:"correct_count"`
	Total        int       `json:"total"`
	Passed       bool      `json:"passed"`
	Mistakes     []Mistake `json:"mistakes"`
	Feedback     string    `json:"feedback"`
	ReviewTopics []string  `json:"review_topics,omitempty"`
}

// GradeExitQuiz grades answers against quiz. answers[i] is the option index
// chosen for question i. Missing, negative and out-of-range answers count as
// wrong. The quiz is passed when at least two thirds of it is correct.
func GradeExitQuiz(quiz []Question, answers []int) Grade {
	g := Grade{Total: len(quiz), Mistakes: []Mistake{}}

	for i, q := range quiz {
		selected := Unanswered
		if i < len(answers) {
			selected = answers[i]
		}
		if selected >= 0 && selected < len(q.Options) && selected == q.CorrectIndex {
			g.CorrectCount++
			continue
		}
		g.Mistakes = append(g.Mistakes, Mistake{
			Index:        i,
			Question:     q.Question,
			Selected:     selected,
			CorrectIndex: q.CorrectIndex,
			ReviewTopic:  q.ReviewTopic,
			Explanation:  q.Explanation,
		})
	}

	g.Passed = g.Total > 0 && 3*g.CorrectCount >= 2*g.Total
	if g.Passed {
		g.Feedback = fmt.Sprintf("Well done! You answered %d of %d correctly.", g.CorrectCount, g.Total)
		return g
	}

	seen := make(map[string]bool)
	for _, m := range g.Mistakes {
		topic := strings.TrimSpace(m.ReviewTopic)
		if topic == "" || seen[strings.ToLower(topic)] {
			continue
		}
		seen[strings.ToLower(topic)] = true
		g.ReviewTopics = append(g.ReviewTopics, topic)
		if len(g.ReviewTopics) == maxReviewTopics {
			break
		}
	}
	if len(g.ReviewTopics) == 0 {
		g.Feedback = fmt.Sprintf("You answered %d of %d correctly. Review the lesson and try again.", g.CorrectCount, g.Total)
	} else {
		g.Feedback = fmt.Sprintf("You answered %d of %d correctly. Review %s and try again.", g.CorrectCount, g.Total, joinTopics(g.ReviewTopics))
	}
	return g
}

// joinTopics renders ["a", "b", "c"] as "a, b and c".
func joinTopics(topics []string) string {
	switch len(topics) {
	case 0:
		return ""
	case 1:
		return topics[0]
	}
	return strings.Join(topics[:len(topics)-1], ", ") + " and " + topics[len(topics)-1]
}

// ValidExitQuiz reports whether quiz has exactly three well-formed questions.
func ValidExitQuiz(quiz []Question) bool {
	if len(quiz) != ExitQuizSize {
		return false
	}
	for _, q := range quiz {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) != OptionCount {
			return false
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
			return false
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return false
			}
		}
	}
	return true
}

// NormalizeExitQuiz returns the module's own exit quiz when it is usable and
// a deterministic fallback quiz otherwise, so a bad quiz never blocks a
// learner.
func NormalizeExitQuiz(m Module) []Question {
	if ValidExitQuiz(m.ExitQuiz) {
		return m.ExitQuiz
	}
	return FallbackExitQuiz(m)
}

// FallbackExitQuiz builds a placeholder quiz from the first three topics of
// m, repeating the first topic when there are fewer than three. The correct
// option is always index 0.
func FallbackExitQuiz(m Module) []Question {
	var topics []string
	for _, t := range m.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = "this module"
		}
		topics = []string{title}
	}
	for len(topics) < ExitQuizSize {
		topics = append(topics, topics[0])
	}

	quiz := make([]Question, ExitQuizSize)
	for i, topic := range topics[:ExitQuizSize] {
		quiz[i] = Question{
			Question: fmt.Sprintf("Which statement best describes the core concept of %s?", topic),
			Options: []string{
				fmt.Sprintf("%s is a core concept covered in this module", topic),
				fmt.Sprintf("%s is unrelated to this module", topic),
				fmt.Sprintf("%s is only covered in a later course", topic),
				"None of the above",
			},
			CorrectIndex: 0,
			ReviewTopic:  topic,
			Explanation:  fmt.Sprintf("%s is one of the core concepts of this module.", topic),
		}
	}
	return quiz
}
