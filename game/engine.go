package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"quizio/questions"
	"quizio/store"
)

const defaultTimePerQuestion = 30

// Engine owns the authoritative progression of a game within a room: question
// sequencing, scoring and leaderboard mutation. It holds no game state of its
// own; every call reads fresh from the store and writes back through it.
type Engine struct {
	store     store.Store
	generator questions.Generator
}

func NewEngine(store store.Store, generator questions.Generator) *Engine {
	return &Engine{store: store, generator: generator}
}

// CreateGame aborts any other non-terminal game in the room, generates n
// questions through the external collaborator and seeds a zeroed leaderboard
// with every active participant.
func (e *Engine) CreateGame(ctx context.Context, roomCode, topic string, n int, difficulty string, timePerQuestion int) (int64, error) {
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

	room, err := e.store.FindRoomByCode(roomCode)
	if err != nil {
		return 0, err
	}
	if room == nil {
		return 0, ErrRoomNotFound
	}
	if room.Status == store.RoomStatusEnded {
		return 0, ErrRoomEnded
	}

	generated, err := e.generator.Generate(ctx, topic, nil, n, difficulty)
	if err != nil {
		return 0, fmt.Errorf("question generation failed: %w", err)
	}

	if err := e.store.AbortActiveGames(roomCode); err != nil {
		return 0, err
	}
	if err := e.store.ResetParticipants(roomCode); err != nil {
		return 0, err
	}

	gameID, err := e.store.CreateGame(roomCode)
	if err != nil {
		return 0, err
	}

	qs := make([]*store.Question, len(generated))
	for i, q := range generated {
		qs[i] = &store.Question{
			Prompt:        q.Question,
			Options:       q.Options,
			CorrectAnswer: q.Answer,
			Timer:         timePerQuestion,
			Topic:         topic,
			Subtopic:      q.Subtopic,
			Difficulty:    difficulty,
		}
	}
	if err := e.store.CreateQuestions(gameID, qs); err != nil {
		return 0, err
	}

	players, err := e.store.ListParticipants(roomCode, store.ParticipantInactive)
	if err != nil {
		return 0, err
	}
	usernames := make([]string, len(players))
	for i, p := range players {
		usernames[i] = p.Username
	}
	if err := e.store.SeedLeaderboard(gameID, usernames); err != nil {
		return 0, err
	}

	return gameID, nil
}

// StartGame flips the current game to in_progress once every participant who
// has not gone inactive is ready, and marks the room active.
func (e *Engine) StartGame(roomCode string) (int64, error) {
	game, err := e.currentGame(roomCode)
	if err != nil {
		return 0, err
	}

	players, err := e.store.ListParticipants(roomCode, store.ParticipantInactive)
	if err != nil {
		return 0, err
	}
	for _, p := range players {
		if p.Status != store.ParticipantReady {
			return 0, ErrNotAllReady
		}
	}

	if err := e.store.StartGame(game.ID); err != nil {
		return 0, err
	}
	if err := e.store.UpdateRoomStatus(roomCode, store.RoomStatusActive); err != nil {
		return 0, err
	}
	return game.ID, nil
}

// AdvanceQuestion serves the question at the cursor and moves it forward by
// exactly one, regardless of how many connections race it. On exhaustion the
// game is finished and ErrGameOver is returned.
func (e *Engine) AdvanceQuestion(roomCode string) (*NextQuestion, error) {
	game, err := e.currentGame(roomCode)
	if err != nil {
		if errors.Is(err, ErrNoCurrentGame) {
			// Terminal (or absent) game: callers treat this as "no more questions".
			return nil, ErrGameOver
		}
		return nil, err
	}

	qs, err := e.store.GetQuestions(game.ID)
	if err != nil {
		return nil, err
	}

	for {
		cursor := game.CurrentQuestion
		if cursor >= len(qs) {
			if err := e.store.FinishGame(game.ID); err != nil {
				return nil, err
			}
			return nil, ErrGameOver
		}

		advanced, err := e.store.AdvanceGameCursor(game.ID, cursor)
		if err != nil {
			return nil, err
		}
		if !advanced {
			// Lost the race; re-read the cursor and try the next slot.
			game, err = e.currentGame(roomCode)
			if err != nil {
				if errors.Is(err, ErrNoCurrentGame) {
					return nil, ErrGameOver
				}
				return nil, err
			}
			continue
		}

		q := qs[cursor]
		if err := e.store.MarkQuestionAsked(q.ID, time.Now()); err != nil {
			return nil, err
		}
		return &NextQuestion{
			QuestionID:     q.ID,
			Question:       q.Prompt,
			Options:        q.Options,
			Timer:          q.Timer,
			IsLastQuestion: cursor+1 == len(qs),
		}, nil
	}
}

// ScoreAnswer classifies a submission as skipped, correct or wrong, updates
// only the submitter's leaderboard entry, and rejects a second submission for
// the same question by the same identity.
func (e *Engine) ScoreAnswer(roomCode, username string, questionID int64, submittedAnswer string, submittedAtMs int64) (*AnswerResult, error) {
	game, err := e.currentGame(roomCode)
	if err != nil {
		return nil, err
	}

	q, err := e.store.GetQuestion(game.ID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}

	submittedAt := time.UnixMilli(submittedAtMs)
	skipped := submittedAnswer == ""
	correct := !skipped && submittedAnswer == q.CorrectAnswer

	if err := e.store.RecordAnswer(game.ID, q.ID, username, submittedAnswer, correct, submittedAt); err != nil {
		if errors.Is(err, store.ErrDuplicateAnswer) {
			return nil, ErrDuplicateAnswer
		}
		return nil, err
	}

	result := &AnswerResult{
		SubmittedAnswer: submittedAnswer,
		IsCorrect:       correct,
		CorrectAnswer:   q.CorrectAnswer,
		Skipped:         skipped,
	}

	switch {
	case skipped:
		err = e.store.IncrementLeaderboard(game.ID, username, 0, 0, 0, 1)
	case correct:
		result.Points = scorePoints(q, submittedAtMs)
		err = e.store.IncrementLeaderboard(game.ID, username, result.Points, 1, 0, 0)
	default:
		err = e.store.IncrementLeaderboard(game.ID, username, 0, 0, 1, 0)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scorePoints decays linearly from 100 at zero latency to 0 at the question's
// time budget; late answers score 0, never negative.
func scorePoints(q *store.Question, submittedAtMs int64) int {
	if !q.AskedAt.Valid || q.Timer <= 0 {
		return 100
	}
	elapsed := float64(submittedAtMs)/1000 - float64(q.AskedAt.Time.Unix())
	if elapsed < 0 {
		elapsed = 0
	}
	points := math.Round(100 * (1 - elapsed/float64(q.Timer)))
	if points < 0 {
		return 0
	}
	return int(points)
}

// EndGame idempotently finishes the current game; an aborted game stays aborted.
func (e *Engine) EndGame(roomCode string) error {
	game, err := e.currentGame(roomCode)
	if err != nil {
		return err
	}
	return e.store.FinishGame(game.ID)
}

// Leaderboard returns the current game's standings, highest score first.
func (e *Engine) Leaderboard(roomCode string) ([]*LeaderboardRow, error) {
	game, err := e.currentGame(roomCode)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.GetLeaderboard(game.ID)
	if err != nil {
		return nil, err
	}
	rows := make([]*LeaderboardRow, len(entries))
	for i, entry := range entries {
		rows[i] = &LeaderboardRow{
			Username:         entry.Username,
			Score:            entry.Score,
			CorrectAnswers:   entry.CorrectAnswers,
			WrongAnswers:     entry.WrongAnswers,
			SkippedQuestions: entry.SkippedQuestions,
		}
	}
	return rows, nil
}

// Roster lists everyone in the room who has not gone inactive.
func (e *Engine) Roster(roomCode string) ([]*Player, error) {
	participants, err := e.store.ListParticipants(roomCode, store.ParticipantInactive)
	if err != nil {
		return nil, err
	}
	players := make([]*Player, len(participants))
	for i, p := range participants {
		players[i] = &Player{
			Username:    p.Username,
			AvatarStyle: p.AvatarStyle,
			AvatarSeed:  p.AvatarSeed,
			Status:      p.Status,
			IsHost:      p.IsHost,
		}
	}
	return players, nil
}

// CurrentGameStatus reports the non-terminal game's status for a room, or
// ErrNoCurrentGame.
func (e *Engine) CurrentGameStatus(roomCode string) (string, error) {
	game, err := e.currentGame(roomCode)
	if err != nil {
		return "", err
	}
	return game.Status, nil
}

func (e *Engine) currentGame(roomCode string) (*store.Game, error) {
	game, err := e.store.FindCurrentGame(roomCode)
	if errors.Is(err, store.ErrNoCurrentGame) {
		return nil, ErrNoCurrentGame
	}
	if err != nil {
		// Includes store.ErrIntegrity, which the caller must not paper over.
		return nil, err
	}
	return game, nil
}
