package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNoCurrentGame means the room has no waiting or in-progress game.
	ErrNoCurrentGame = errors.New("no current game for room")
	// ErrIntegrity signals a broken invariant (e.g. two non-terminal games in one
	// room). It is a defect, not a user error, and must never be resolved by
	// silently picking one row.
	ErrIntegrity = errors.New("data integrity violation")
	// ErrDuplicateAnswer means this identity already answered this question.
	ErrDuplicateAnswer = errors.New("answer already submitted for question")
	// ErrDuplicateUsername means the name is already taken within the room.
	ErrDuplicateUsername = errors.New("username already taken in room")
	// ErrNoSoloGame means the user has no in-progress single-player game.
	ErrNoSoloGame = errors.New("no single-player game in progress")
	// ErrSoloGameActive means the user already has a single-player game running.
	ErrSoloGameActive = errors.New("single-player game already in progress")
)

const (
	RoomStatusWaiting = "waiting"
	RoomStatusActive  = "active"
	RoomStatusEnded   = "ended"

	GameStatusWaiting    = "waiting"
	GameStatusInProgress = "in_progress"
	GameStatusFinished   = "finished"
	GameStatusAborted    = "aborted"

	ParticipantWaiting  = "waiting"
	ParticipantReady    = "ready"
	ParticipantInactive = "inactive"
)

type Store interface {
	// Users and guests
	CreateUser(username, passwordHash string) (int64, error)
	GetUserByUsername(username string) (*User, error)
	GetUserByID(userID int64) (*User, error)
	CreateGuest(guestID, username, roomCode string) error

	// Rooms
	CreateRoom(hostID int64) (*Room, error)
	FindRoomByHost(hostID int64) (*Room, error)
	FindRoomByCode(code string) (*Room, error)
	UpdateRoomStatus(code, status string) error

	// Participants
	UpsertParticipant(roomCode, username, avatarStyle, avatarSeed string, isHost bool) (*Participant, error)
	SetParticipantStatus(roomCode, username, status string) (bool, error)
	ListParticipants(roomCode, excludeStatus string) ([]*Participant, error)
	RemoveParticipant(roomCode, username string) error
	ResetParticipants(roomCode string) error

	// Games
	CreateGame(roomCode string) (int64, error)
	FindCurrentGame(roomCode string) (*Game, error)
	AbortActiveGames(roomCode string) error
	AdvanceGameCursor(gameID int64, fromCursor int) (bool, error)
	FinishGame(gameID int64) error
	StartGame(gameID int64) error

	// Questions
	CreateQuestions(gameID int64, questions []*Question) error
	GetQuestions(gameID int64) ([]*Question, error)
	GetQuestion(gameID, questionID int64) (*Question, error)
	MarkQuestionAsked(questionID int64, at time.Time) error

	// Leaderboard and answers
	SeedLeaderboard(gameID int64, usernames []string) error
	GetLeaderboard(gameID int64) ([]*LeaderboardEntry, error)
	IncrementLeaderboard(gameID int64, username string, dScore, dCorrect, dWrong, dSkipped int) error
	RecordAnswer(gameID, questionID int64, username, answer string, isCorrect bool, submittedAt time.Time) error

	// Single-player games
	CreateSoloGame(userID int64) (int64, error)
	FindCurrentSoloGame(userID int64) (*SoloGame, error)
	CreateSoloQuestions(gameID int64, questions []*SoloQuestion) error
	GetSoloQuestions(gameID int64) ([]*SoloQuestion, error)
	GetSoloQuestion(gameID, questionID int64) (*SoloQuestion, error)
	MarkSoloAnswer(questionID int64, answered, skipped bool) error
	AdvanceSoloCursor(gameID int64, fromCursor int) (bool, error)
	FinishSoloGame(gameID int64) error

	// Housekeeping (cron)
	EndIdleRooms(idleFor time.Duration) (int64, error)
	DeleteEndedRooms(endedFor time.Duration) (int64, error)

	Close() error
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    string
}

type Room struct {
	ID        int64
	RoomCode  string
	HostID    int64
	Status    string
	CreatedAt string
}

type Participant struct {
	ID               int64
	RoomCode         string
	Username         string
	AvatarStyle      string
	AvatarSeed       string
	Status           string
	IsHost           bool
	Score            int
	CorrectAnswers   int
	WrongAnswers     int
	SkippedQuestions int
}

type Game struct {
	ID              int64
	RoomCode        string
	Status          string
	CurrentQuestion int
	StartedAt       sql.NullTime
	EndedAt         sql.NullTime
}

type Question struct {
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
	AskedAt       sql.NullTime
}

type LeaderboardEntry struct {
	GameID           int64
	Username         string
	Score            int
	CorrectAnswers   int
	WrongAnswers     int
	SkippedQuestions int
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Room codes avoid 0/O and 1/I to stay readable when typed from a screen.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 8

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func (s *SQLiteStore) CreateUser(username, passwordHash string) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(userID int64) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		userID,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) CreateGuest(guestID, username, roomCode string) error {
	_, err := s.db.Exec(
		"INSERT INTO guests (id, username, room_code) VALUES (?, ?, ?)",
		guestID, username, roomCode,
	)
	if err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateRoom(hostID int64) (*Room, error) {
	// Retry on the rare code collision; the alphabet gives 32^8 combinations.
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return nil, err
		}
		result, err := s.db.Exec(
			"INSERT INTO rooms (room_code, host_id, status) VALUES (?, ?, 'waiting')",
			code, hostID,
		)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		return &Room{ID: id, RoomCode: code, HostID: hostID, Status: RoomStatusWaiting}, nil
	}
	return nil, errors.New("failed to generate a unique room code")
}

func (s *SQLiteStore) FindRoomByHost(hostID int64) (*Room, error) {
	return s.scanRoom(s.db.QueryRow(
		"SELECT id, room_code, host_id, status, created_at FROM rooms WHERE host_id = ? AND status != 'ended'",
		hostID,
	))
}

func (s *SQLiteStore) FindRoomByCode(code string) (*Room, error) {
	return s.scanRoom(s.db.QueryRow(
		"SELECT id, room_code, host_id, status, created_at FROM rooms WHERE room_code = ?",
		code,
	))
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*Room, error) {
	room := &Room{}
	err := row.Scan(&room.ID, &room.RoomCode, &room.HostID, &room.Status, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) UpdateRoomStatus(code, status string) error {
	_, err := s.db.Exec(
		"UPDATE rooms SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE room_code = ?",
		status, code,
	)
	if err != nil {
		return fmt.Errorf("failed to update room status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertParticipant(roomCode, username, avatarStyle, avatarSeed string, isHost bool) (*Participant, error) {
	hostVal := 0
	if isHost {
		hostVal = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO participants (room_code, username, avatar_style, avatar_seed, status, is_host)
		VALUES (?, ?, ?, ?, 'waiting', ?)
		ON CONFLICT (room_code, username)
		DO UPDATE SET avatar_style = excluded.avatar_style, avatar_seed = excluded.avatar_seed, status = 'waiting'
	`, roomCode, username, avatarStyle, avatarSeed, hostVal)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}
	return s.getParticipant(roomCode, username)
}

func (s *SQLiteStore) getParticipant(roomCode, username string) (*Participant, error) {
	p := &Participant{}
	var isHost int
	err := s.db.QueryRow(`
		SELECT id, room_code, username, avatar_style, avatar_seed, status, is_host,
		       score, correct_answers, wrong_answers, skipped_questions
		FROM participants WHERE room_code = ? AND username = ?
	`, roomCode, username).Scan(
		&p.ID, &p.RoomCode, &p.Username, &p.AvatarStyle, &p.AvatarSeed, &p.Status, &isHost,
		&p.Score, &p.CorrectAnswers, &p.WrongAnswers, &p.SkippedQuestions,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	p.IsHost = isHost == 1
	return p, nil
}

// SetParticipantStatus is idempotent: it reports false without touching the row
// when the participant is missing or already has the requested status.
func (s *SQLiteStore) SetParticipantStatus(roomCode, username, status string) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE participants SET status = ? WHERE room_code = ? AND username = ? AND status != ?",
		status, roomCode, username, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set participant status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListParticipants(roomCode, excludeStatus string) ([]*Participant, error) {
	query := `
		SELECT id, room_code, username, avatar_style, avatar_seed, status, is_host,
		       score, correct_answers, wrong_answers, skipped_questions
		FROM participants WHERE room_code = ?`
	args := []interface{}{roomCode}
	if excludeStatus != "" {
		query += " AND status != ?"
		args = append(args, excludeStatus)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p := &Participant{}
		var isHost int
		if err := rows.Scan(
			&p.ID, &p.RoomCode, &p.Username, &p.AvatarStyle, &p.AvatarSeed, &p.Status, &isHost,
			&p.Score, &p.CorrectAnswers, &p.WrongAnswers, &p.SkippedQuestions,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.IsHost = isHost == 1
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *SQLiteStore) RemoveParticipant(roomCode, username string) error {
	_, err := s.db.Exec(
		"DELETE FROM participants WHERE room_code = ? AND username = ?",
		roomCode, username,
	)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResetParticipants(roomCode string) error {
	_, err := s.db.Exec(`
		UPDATE participants
		SET status = 'waiting', score = 0, correct_answers = 0, wrong_answers = 0, skipped_questions = 0
		WHERE room_code = ?
	`, roomCode)
	if err != nil {
		return fmt.Errorf("failed to reset participants: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateGame(roomCode string) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO games (room_code, status) VALUES (?, 'waiting')",
		roomCode,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create game: %w", err)
	}
	return result.LastInsertId()
}

// FindCurrentGame returns the unique non-terminal game for a room. Two
// non-terminal games at once means the abort-on-create invariant was broken
// somewhere, so that case is reported as ErrIntegrity rather than resolved.
func (s *SQLiteStore) FindCurrentGame(roomCode string) (*Game, error) {
	rows, err := s.db.Query(`
		SELECT id, room_code, status, current_question, started_at, ended_at
		FROM games WHERE room_code = ? AND status IN ('waiting', 'in_progress')
	`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to find current game: %w", err)
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g := &Game{}
		if err := rows.Scan(&g.ID, &g.RoomCode, &g.Status, &g.CurrentQuestion, &g.StartedAt, &g.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(games) {
	case 0:
		return nil, ErrNoCurrentGame
	case 1:
		return games[0], nil
	default:
		return nil, fmt.Errorf("%w: %d non-terminal games for room %s", ErrIntegrity, len(games), roomCode)
	}
}

func (s *SQLiteStore) AbortActiveGames(roomCode string) error {
	_, err := s.db.Exec(`
		UPDATE games SET status = 'aborted', ended_at = CURRENT_TIMESTAMP
		WHERE room_code = ? AND status IN ('waiting', 'in_progress')
	`, roomCode)
	if err != nil {
		return fmt.Errorf("failed to abort active games: %w", err)
	}
	return nil
}

// AdvanceGameCursor is the single serialization point for question order: a
// conditional update that only succeeds when the cursor still equals fromCursor.
// Exactly one of two concurrent callers wins; the loser re-reads and retries.
func (s *SQLiteStore) AdvanceGameCursor(gameID int64, fromCursor int) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE games
		SET current_question = ? + 1, status = 'in_progress',
		    started_at = COALESCE(started_at, CURRENT_TIMESTAMP)
		WHERE id = ? AND current_question = ? AND status IN ('waiting', 'in_progress')
	`, fromCursor, gameID, fromCursor)
	if err != nil {
		return false, fmt.Errorf("failed to advance game cursor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) FinishGame(gameID int64) error {
	// Idempotent; an aborted game stays aborted.
	_, err := s.db.Exec(`
		UPDATE games SET status = 'finished', ended_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('waiting', 'in_progress')
	`, gameID)
	if err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StartGame(gameID int64) error {
	_, err := s.db.Exec(`
		UPDATE games SET status = 'in_progress', started_at = COALESCE(started_at, CURRENT_TIMESTAMP)
		WHERE id = ? AND status = 'waiting'
	`, gameID)
	if err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateQuestions(gameID int64, questions []*Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO questions (game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare question insert: %w", err)
	}
	defer stmt.Close()

	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		result, err := stmt.Exec(gameID, i, q.Prompt, string(options), q.CorrectAnswer, q.Timer, q.Topic, q.Subtopic, q.Difficulty)
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
		q.ID, _ = result.LastInsertId()
		q.GameID = gameID
		q.Ord = i
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit questions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetQuestions(gameID int64) ([]*Question, error) {
	rows, err := s.db.Query(`
		SELECT id, game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty, asked_at
		FROM questions WHERE game_id = ? ORDER BY ord
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) GetQuestion(gameID, questionID int64) (*Question, error) {
	rows, err := s.db.Query(`
		SELECT id, game_id, ord, prompt, options, correct_answer, timer, topic, subtopic, difficulty, asked_at
		FROM questions WHERE game_id = ? AND id = ?
	`, gameID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanQuestion(rows)
}

func scanQuestion(rows *sql.Rows) (*Question, error) {
	q := &Question{}
	var options string
	if err := rows.Scan(&q.ID, &q.GameID, &q.Ord, &q.Prompt, &options, &q.CorrectAnswer, &q.Timer, &q.Topic, &q.Subtopic, &q.Difficulty, &q.AskedAt); err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return q, nil
}

// MarkQuestionAsked stamps the moment a question was served; the first stamp
// wins so reconnect-driven re-sends cannot reset the scoring clock.
func (s *SQLiteStore) MarkQuestionAsked(questionID int64, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE questions SET asked_at = COALESCE(asked_at, ?) WHERE id = ?",
		at.UTC(), questionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark question asked: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SeedLeaderboard(gameID int64, usernames []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, username := range usernames {
		if _, err := tx.Exec(`
			INSERT INTO leaderboard_entries (game_id, username) VALUES (?, ?)
			ON CONFLICT (game_id, username) DO NOTHING
		`, gameID, username); err != nil {
			return fmt.Errorf("failed to seed leaderboard: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leaderboard seed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLeaderboard(gameID int64) ([]*LeaderboardEntry, error) {
	rows, err := s.db.Query(`
		SELECT game_id, username, score, correct_answers, wrong_answers, skipped_questions
		FROM leaderboard_entries WHERE game_id = ? ORDER BY score DESC, username
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*LeaderboardEntry
	for rows.Next() {
		e := &LeaderboardEntry{}
		if err := rows.Scan(&e.GameID, &e.Username, &e.Score, &e.CorrectAnswers, &e.WrongAnswers, &e.SkippedQuestions); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IncrementLeaderboard touches only this identity's row, so two participants
// scoring concurrently can never overwrite each other. An entry is created on
// demand for late joiners who were not seeded.
func (s *SQLiteStore) IncrementLeaderboard(gameID int64, username string, dScore, dCorrect, dWrong, dSkipped int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO leaderboard_entries (game_id, username) VALUES (?, ?)
		ON CONFLICT (game_id, username) DO NOTHING
	`, gameID, username); err != nil {
		return fmt.Errorf("failed to ensure leaderboard entry: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE leaderboard_entries
		SET score = score + ?, correct_answers = correct_answers + ?,
		    wrong_answers = wrong_answers + ?, skipped_questions = skipped_questions + ?
		WHERE game_id = ? AND username = ?
	`, dScore, dCorrect, dWrong, dSkipped, gameID, username); err != nil {
		return fmt.Errorf("failed to increment leaderboard entry: %w", err)
	}

	// Keep the participant's running tallies in step with the leaderboard.
	if _, err := tx.Exec(`
		UPDATE participants
		SET score = score + ?, correct_answers = correct_answers + ?,
		    wrong_answers = wrong_answers + ?, skipped_questions = skipped_questions + ?
		WHERE room_code = (SELECT room_code FROM games WHERE id = ?) AND username = ?
	`, dScore, dCorrect, dWrong, dSkipped, gameID, username); err != nil {
		return fmt.Errorf("failed to update participant tallies: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leaderboard update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordAnswer(gameID, questionID int64, username, answer string, isCorrect bool, submittedAt time.Time) error {
	correctVal := 0
	if isCorrect {
		correctVal = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO answers (game_id, question_id, username, answer, is_correct, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, gameID, questionID, username, answer, correctVal, submittedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicateAnswer
	}
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	return nil
}

// sqliteTime matches the format CURRENT_TIMESTAMP writes, so cutoff
// comparisons against updated_at stay lexicographically correct.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func (s *SQLiteStore) EndIdleRooms(idleFor time.Duration) (int64, error) {
	cutoff := sqliteTime(time.Now().Add(-idleFor))
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE games SET status = 'aborted', ended_at = CURRENT_TIMESTAMP
		WHERE status IN ('waiting', 'in_progress') AND room_code IN
		(SELECT room_code FROM rooms WHERE status != 'ended' AND updated_at <= ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to abort games of idle rooms: %w", err)
	}
	result, err := tx.Exec(`
		UPDATE rooms SET status = 'ended', updated_at = CURRENT_TIMESTAMP
		WHERE status != 'ended' AND updated_at <= ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to end idle rooms: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *SQLiteStore) DeleteEndedRooms(endedFor time.Duration) (int64, error) {
	cutoff := sqliteTime(time.Now().Add(-endedFor))
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Games cascade to questions, leaderboards and answers; rooms cascade to
	// participants. Guests are keyed by room code and cleaned alongside.
	if _, err := tx.Exec(`
		DELETE FROM games WHERE room_code IN
		(SELECT room_code FROM rooms WHERE status = 'ended' AND updated_at <= ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete games of ended rooms: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM guests WHERE room_code IN
		(SELECT room_code FROM rooms WHERE status = 'ended' AND updated_at <= ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete guests of ended rooms: %w", err)
	}
	result, err := tx.Exec(
		"DELETE FROM rooms WHERE status = 'ended' AND updated_at <= ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ended rooms: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit room cleanup: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
