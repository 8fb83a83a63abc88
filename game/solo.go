package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quizio/questions"
	"quizio/store"
)

// SoloQuestionView is a solo question as the player sees it; the correct
// answer stays on the server until the question is answered.
type SoloQuestionView struct {
	QuestionID int64    `json:"questionId"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Timer      int      `json:"timer"`
}

// SoloResult is the verdict for one solo submission. Answer carries the
// correct answer only when the submission was wrong or skipped.
type SoloResult struct {
	Correct bool   `json:"correct"`
	Answer  string `json:"answer,omitempty"`
}

// OutOfOrderAnswerError reports a submission that targeted a question other
// than the one at the cursor, and carries the question the player should be
// answering instead.
type OutOfOrderAnswerError struct {
	Current SoloQuestionView
}

func (e *OutOfOrderAnswerError) Error() string {
	return "answer must target the current question"
}

// Solo runs single-player games: same generated questions and cursor
// progression as a room game, but private to one user, answered strictly in
// order, with no leaderboard.
type Solo struct {
	store     store.Store
	generator questions.Generator
}

func NewSolo(store store.Store, generator questions.Generator) *Solo {
	return &Solo{store: store, generator: generator}
}

// StartGame generates questions and opens a game for the user. A user can
// only have one game in progress; a second start fails with ErrSoloGameActive.
func (s *Solo) StartGame(ctx context.Context, userID int64, topic string, subtopics []string, n int, difficulty string, timePerQuestion int) (int64, error) {
	if n <= 0 {
		return 0, ErrInvalidQuestionCount
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0, ErrInvalidTopic
	}
	if timePerQuestion <= 0 {
		timePerQuestion = defaultTimePerQuestion
	}

	generated, err := s.generator.Generate(ctx, topic, subtopics, n, difficulty)
	if err != nil {
		return 0, fmt.Errorf("question generation failed: %w", err)
	}

	gameID, err := s.store.CreateSoloGame(userID)
	if err != nil {
		if errors.Is(err, store.ErrSoloGameActive) {
			return 0, ErrSoloGameActive
		}
		return 0, err
	}

	qs := make([]*store.SoloQuestion, len(generated))
	for i, q := range generated {
		qs[i] = &store.SoloQuestion{
			Prompt:        q.Question,
			Options:       q.Options,
			CorrectAnswer: q.Answer,
			Timer:         timePerQuestion,
			Topic:         topic,
			Subtopic:      q.Subtopic,
			Difficulty:    difficulty,
		}
	}
	if err := s.store.CreateSoloQuestions(gameID, qs); err != nil {
		return 0, err
	}
	return gameID, nil
}

// CurrentGameID returns the id of the user's in-progress game.
func (s *Solo) CurrentGameID(userID int64) (int64, error) {
	game, err := s.currentGame(userID)
	if err != nil {
		return 0, err
	}
	return game.ID, nil
}

// Questions lists the user's in-progress game's questions in play order.
func (s *Solo) Questions(userID int64) ([]*SoloQuestionView, error) {
	game, err := s.currentGame(userID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.GetSoloQuestions(game.ID)
	if err != nil {
		return nil, err
	}
	views := make([]*SoloQuestionView, len(qs))
	for i, q := range qs {
		views[i] = soloView(q)
	}
	return views, nil
}

// CheckAnswer scores a submission against the question at the cursor and
// advances it. Questions must be answered in order; a submission for any
// other question fails with OutOfOrderAnswerError carrying the current one.
// An empty answer counts as skipped. Exhausting the questions finishes the
// game and returns ErrNoMoreQuestions.
func (s *Solo) CheckAnswer(userID, questionID int64, answer string) (*SoloResult, error) {
	game, err := s.currentGame(userID)
	if err != nil {
		return nil, err
	}

	qs, err := s.store.GetSoloQuestions(game.ID)
	if err != nil {
		return nil, err
	}
	if game.CurrentQuestion >= len(qs) {
		if err := s.store.FinishSoloGame(game.ID); err != nil {
			return nil, err
		}
		return nil, ErrNoMoreQuestions
	}

	q, err := s.store.GetSoloQuestion(game.ID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}

	current := qs[game.CurrentQuestion]
	if current.ID != q.ID {
		return nil, &OutOfOrderAnswerError{Current: *soloView(current)}
	}

	if err := s.store.MarkSoloAnswer(q.ID, answer != "", answer == ""); err != nil {
		return nil, err
	}
	advanced, err := s.store.AdvanceSoloCursor(game.ID, game.CurrentQuestion)
	if err != nil {
		return nil, err
	}
	if !advanced {
		// A concurrent submit for the same slot already moved the cursor.
		return nil, ErrDuplicateAnswer
	}

	if answer == q.CorrectAnswer {
		return &SoloResult{Correct: true}, nil
	}
	return &SoloResult{Correct: false, Answer: q.CorrectAnswer}, nil
}

func soloView(q *store.SoloQuestion) *SoloQuestionView {
	return &SoloQuestionView{
		QuestionID: q.ID,
		Question:   q.Prompt,
		Options:    q.Options,
		Timer:      q.Timer,
	}
}

func (s *Solo) currentGame(userID int64) (*store.SoloGame, error) {
	game, err := s.store.FindCurrentSoloGame(userID)
	if errors.Is(err, store.ErrNoSoloGame) {
		return nil, ErrNoSoloGame
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}
