package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SoloGame is one user's private game. A partial unique index on
// (user_id) WHERE status = 'in_progress' enforces at most one running game
// per user at the database level.
type SoloGame struct {
	ID              int64
	UserID          int64
	Status          string
	CurrentQuestion int
	CreatedAt       sql.NullTime
	EndedAt         sql.NullTime
}

type SoloQuestion struct {
	ID            int64
	GameID        int64
	Ord           int
	Prompt        string
	Options       []string
	CorrectAnswer string
	Timer         int
	Topic         string
	Subtopic      string
	Difficulty    string
	Answered      bool
	Skipped       bool
}

func (s *SQLiteStore) CreateSoloGame(userID int64) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO solo_games (user_id, status) VALUES (?, 'in_progress')",
		userID,
	)
	if isUniqueViolation(err) {
		return 0, ErrSoloGameActive
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create solo game: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) FindCurrentSoloGame(userID int64) (*SoloGame, error) {
	g := &SoloGame{}
	err := s.db.QueryRow(`
		SELECT id, user_id, status, current_question, created_at, ended_at
		FROM solo_games WHERE user_id = ? AND status = 'in_progress'
	`, userID).Scan(&g.ID, &g.UserID, &g.Status, &g.CurrentQuestion, &g.CreatedAt, &g.EndedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNoSoloGame
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find solo game: %w", err)
	}
	return g, nil
}

func (s *SQLiteStore) CreateSoloQuestions(gameID int64, questions []*SoloQuestion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO solo_questions (game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare solo question insert: %w", err)
	}
	defer stmt.Close()

	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		result, err := stmt.Exec(gameID, i, q.Prompt, string(options), q.CorrectAnswer, q.Timer, q.Topic, q.Subtopic, q.Difficulty)
		if err != nil {
			return fmt.Errorf("failed to insert solo question: %w", err)
		}
		q.ID, _ = result.LastInsertId()
		q.GameID = gameID
		q.Ord = i
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit solo questions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSoloQuestions(gameID int64) ([]*SoloQuestion, error) {
	rows, err := s.db.Query(`
		SELECT id, game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty, answered, skipped
		FROM solo_questions WHERE game_id = ? ORDER BY ord
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get solo questions: %w", err)
	}
	defer rows.Close()

	var questions []*SoloQuestion
	for rows.Next() {
		q, err := scanSoloQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) GetSoloQuestion(gameID, questionID int64) (*SoloQuestion, error) {
	rows, err := s.db.Query(`
		SELECT id, game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty, answered, skipped
		FROM solo_questions WHERE game_id = ? AND id = ?
	`, gameID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get solo question: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSoloQuestion(rows)
}

func scanSoloQuestion(rows *sql.Rows) (*SoloQuestion, error) {
	q := &SoloQuestion{}
	var options string
	var answered, skipped int
	if err := rows.Scan(&q.ID, &q.GameID, &q.Ord, &q.Prompt, &options, &q.CorrectAnswer, &q.Timer, &q.Topic, &q.Subtopic, &q.Difficulty, &answered, &skipped); err != nil {
		return nil, fmt.Errorf("failed to scan solo question: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	q.Answered = answered == 1
	q.Skipped = skipped == 1
	return q, nil
}

func (s *SQLiteStore) MarkSoloAnswer(questionID int64, answered, skipped bool) error {
	answeredVal, skippedVal := 0, 0
	if answered {
		answeredVal = 1
	}
	if skipped {
		skippedVal = 1
	}
	_, err := s.db.Exec(
		"UPDATE solo_questions SET answered = ?, skipped = ? WHERE id = ?",
		answeredVal, skippedVal, questionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark solo answer: %w", err)
	}
	return nil
}

// AdvanceSoloCursor mirrors the multiplayer cursor: a conditional update that
// only succeeds when the cursor still equals fromCursor, so double submits for
// the same slot cannot advance twice.
func (s *SQLiteStore) AdvanceSoloCursor(gameID int64, fromCursor int) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE solo_games SET current_question = ? + 1
		WHERE id = ? AND current_question = ? AND status = 'in_progress'
	`, fromCursor, gameID, fromCursor)
	if err != nil {
		return false, fmt.Errorf("failed to advance solo cursor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) FinishSoloGame(gameID int64) error {
	_, err := s.db.Exec(`
		UPDATE solo_games SET status = 'finished', ended_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'in_progress'
	`, gameID)
	if err != nil {
		return fmt.Errorf("failed to finish solo game: %w", err)
	}
	return nil
}
