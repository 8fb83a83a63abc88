// Package questions wraps the external question-generation service. The rest
// of the server only sees the Generator interface.
package questions

import "context"

type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
	Subtopic string   `json:"subtopic"`
}

type Generator interface {
	Generate(ctx context.Context, topic string, subtopics []string, n int, difficulty string) ([]Question, error)
}

// SubtopicGenerator proposes subtopics for a topic, for hosts narrowing down
// what a game should cover before generating questions.
type SubtopicGenerator interface {
	GenerateSubtopics(ctx context.Context, topic string) ([]string, error)
}
