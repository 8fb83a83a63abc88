package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizio/questions"
	"quizio/store"
)

type fakeGenerator struct {
	fail bool
}

func (f *fakeGenerator) Generate(ctx context.Context, topic string, subtopics []string, n int, difficulty string) ([]questions.Question, error) {
	if f.fail {
		return nil, errors.New("generator down")
	}
	out := make([]questions.Question, n)
	for i := range out {
		out[i] = questions.Question{
			Question: fmt.Sprintf("%s question %d", topic, i+1),
			Options:  []string{"a", "b", "c", "d"},
			Answer:   "a",
			Subtopic: "general",
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, string) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hostID, err := s.CreateUser("host", "hash")
	require.NoError(t, err)
	room, err := s.CreateRoom(hostID)
	require.NoError(t, err)

	for _, username := range []string{"host", "alice", "bob"} {
		_, err := s.UpsertParticipant(room.RoomCode, username, "Circle", "", username == "host")
		require.NoError(t, err)
		_, err = s.SetParticipantStatus(room.RoomCode, username, store.ParticipantReady)
		require.NoError(t, err)
	}

	return NewEngine(s, &fakeGenerator{}), s, room.RoomCode
}

func TestCreateGame_Validation(t *testing.T) {
	engine, _, roomCode := newTestEngine(t)
	ctx := context.Background()

	testCases := []struct {
		desc    string
		room    string
		topic   string
		n       int
		wantErr error
	}{
		{desc: "zero questions", room: roomCode, topic: "history", n: 0, wantErr: ErrInvalidQuestionCount},
		{desc: "negative questions", room: roomCode, topic: "history", n: -3, wantErr: ErrInvalidQuestionCount},
		{desc: "blank topic", room: roomCode, topic: "   ", n: 5, wantErr: ErrInvalidTopic},
		{desc: "unknown room", room: "NOSUCHRM", topic: "history", n: 5, wantErr: ErrRoomNotFound},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, err := engine.CreateGame(ctx, tC.room, tC.topic, tC.n, "easy", 30)
			assert.ErrorIs(t, err, tC.wantErr)
		})
	}
}

func TestCreateGame_EndedRoom(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	require.NoError(t, s.UpdateRoomStatus(roomCode, store.RoomStatusEnded))

	_, err := engine.CreateGame(context.Background(), roomCode, "history", 5, "easy", 30)
	assert.ErrorIs(t, err, ErrRoomEnded)
}

func TestCreateGame_GeneratorFailureCreatesNothing(t *testing.T) {
	_, s, roomCode := newTestEngine(t)
	engine := NewEngine(s, &fakeGenerator{fail: true})

	_, err := engine.CreateGame(context.Background(), roomCode, "history", 5, "easy", 30)
	require.Error(t, err)

	_, err = s.FindCurrentGame(roomCode)
	assert.ErrorIs(t, err, store.ErrNoCurrentGame)
}

func TestCreateGame_SeedsLeaderboardAndQuestions(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)

	gameID, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 20)
	require.NoError(t, err)

	qs, err := s.GetQuestions(gameID)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, "history question 1", qs[0].Prompt)
	assert.Equal(t, 20, qs[0].Timer)
	assert.Equal(t, "history", qs[0].Topic)

	entries, err := s.GetLeaderboard(gameID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Zero(t, e.Score)
	}
}

func TestCreateGame_AbortsPreviousGame(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	ctx := context.Background()

	firstID, err := engine.CreateGame(ctx, roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)
	secondID, err := engine.CreateGame(ctx, roomCode, "science", 3, "easy", 30)
	require.NoError(t, err)

	current, err := s.FindCurrentGame(roomCode)
	require.NoError(t, err, "exactly one non-terminal game must remain")
	assert.Equal(t, secondID, current.ID)
	assert.NotEqual(t, firstID, current.ID)
}

func TestCreateGame_ExcludesInactiveFromLeaderboard(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	_, err := s.SetParticipantStatus(roomCode, "bob", store.ParticipantInactive)
	require.NoError(t, err)

	gameID, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	entries, err := s.GetLeaderboard(gameID)
	require.NoError(t, err)
	usernames := make([]string, len(entries))
	for i, e := range entries {
		usernames[i] = e.Username
	}
	assert.ElementsMatch(t, []string{"host", "alice"}, usernames)
}

func TestStartGame(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	_, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	// CreateGame resets everyone to waiting, so starting immediately must fail.
	_, err = engine.StartGame(roomCode)
	assert.ErrorIs(t, err, ErrNotAllReady)

	for _, username := range []string{"host", "alice", "bob"} {
		_, err := s.SetParticipantStatus(roomCode, username, store.ParticipantReady)
		require.NoError(t, err)
	}

	gameID, err := engine.StartGame(roomCode)
	require.NoError(t, err)

	status, err := engine.CurrentGameStatus(roomCode)
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusInProgress, status)

	room, err := s.FindRoomByCode(roomCode)
	require.NoError(t, err)
	assert.Equal(t, store.RoomStatusActive, room.Status)
	assert.NotZero(t, gameID)
}

func TestStartGame_IgnoresInactive(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	_, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	for _, username := range []string{"host", "alice"} {
		_, err := s.SetParticipantStatus(roomCode, username, store.ParticipantReady)
		require.NoError(t, err)
	}
	_, err = s.SetParticipantStatus(roomCode, "bob", store.ParticipantInactive)
	require.NoError(t, err)

	_, err = engine.StartGame(roomCode)
	assert.NoError(t, err, "inactive participants must not block the start")
}

func TestAdvanceQuestion_ServesEachExactlyOnce(t *testing.T) {
	engine, _, roomCode := newTestEngine(t)
	_, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		q, err := engine.AdvanceQuestion(roomCode)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("history question %d", i+1), q.Question)
		assert.Equal(t, i == 2, q.IsLastQuestion)
		assert.Len(t, q.Options, 4)
		assert.Equal(t, 30, q.Timer)
	}

	_, err = engine.AdvanceQuestion(roomCode)
	assert.ErrorIs(t, err, ErrGameOver)

	// Exhaustion finished the game, so there is no current game anymore.
	_, err = engine.CurrentGameStatus(roomCode)
	assert.ErrorIs(t, err, ErrNoCurrentGame)
}

func TestAdvanceQuestion_Concurrent(t *testing.T) {
	engine, _, roomCode := newTestEngine(t)
	const questionCount = 8
	_, err := engine.CreateGame(context.Background(), roomCode, "history", questionCount, "easy", 30)
	require.NoError(t, err)

	var mu sync.Mutex
	served := make(map[int64]int)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				q, err := engine.AdvanceQuestion(roomCode)
				if errors.Is(err, ErrGameOver) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				served[q.QuestionID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, served, questionCount, "every question must be served")
	for id, n := range served {
		assert.Equal(t, 1, n, "question %d served more than once", id)
	}
}

func TestScoreAnswer_Classification(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	gameID, err := engine.CreateGame(context.Background(), roomCode, "history", 1, "easy", 30)
	require.NoError(t, err)
	qs, err := s.GetQuestions(gameID)
	require.NoError(t, err)
	q := qs[0]

	// Whole seconds keep the elapsed-time arithmetic exact.
	asked := time.Now().Add(-2 * time.Second).Truncate(time.Second)
	require.NoError(t, s.MarkQuestionAsked(q.ID, asked))
	submittedAt := asked.Add(2 * time.Second).UnixMilli()

	correct, err := engine.ScoreAnswer(roomCode, "alice", q.ID, "a", submittedAt)
	require.NoError(t, err)
	assert.True(t, correct.IsCorrect)
	assert.False(t, correct.Skipped)
	assert.Equal(t, "a", correct.CorrectAnswer)
	assert.Equal(t, 93, correct.Points)

	wrong, err := engine.ScoreAnswer(roomCode, "bob", q.ID, "b", submittedAt)
	require.NoError(t, err)
	assert.False(t, wrong.IsCorrect)
	assert.False(t, wrong.Skipped)
	assert.Zero(t, wrong.Points)

	skip, err := engine.ScoreAnswer(roomCode, "host", q.ID, "", submittedAt)
	require.NoError(t, err)
	assert.False(t, skip.IsCorrect)
	assert.True(t, skip.Skipped)

	rows, err := engine.Leaderboard(roomCode)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, 93, rows[0].Score)
	assert.Equal(t, 1, rows[0].CorrectAnswers)
	byName := map[string]*LeaderboardRow{}
	for _, r := range rows {
		byName[r.Username] = r
	}
	assert.Equal(t, 1, byName["bob"].WrongAnswers)
	assert.Equal(t, 1, byName["host"].SkippedQuestions)
}

func TestScoreAnswer_RejectsDuplicate(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	gameID, err := engine.CreateGame(context.Background(), roomCode, "history", 1, "easy", 30)
	require.NoError(t, err)
	qs, err := s.GetQuestions(gameID)
	require.NoError(t, err)

	now := time.Now().UnixMilli()
	_, err = engine.ScoreAnswer(roomCode, "alice", qs[0].ID, "b", now)
	require.NoError(t, err)

	_, err = engine.ScoreAnswer(roomCode, "alice", qs[0].ID, "a", now)
	assert.ErrorIs(t, err, ErrDuplicateAnswer)

	// The rejected retry must not have touched the standings.
	rows, err := engine.Leaderboard(roomCode)
	require.NoError(t, err)
	byName := map[string]*LeaderboardRow{}
	for _, r := range rows {
		byName[r.Username] = r
	}
	assert.Equal(t, 1, byName["alice"].WrongAnswers)
	assert.Zero(t, byName["alice"].CorrectAnswers)
}

func TestScoreAnswer_UnknownQuestion(t *testing.T) {
	engine, _, roomCode := newTestEngine(t)
	_, err := engine.CreateGame(context.Background(), roomCode, "history", 1, "easy", 30)
	require.NoError(t, err)

	_, err = engine.ScoreAnswer(roomCode, "alice", 99999, "a", time.Now().UnixMilli())
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestScoreAnswer_LateAnswerScoresZeroButCounts(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	gameID, err := engine.CreateGame(context.Background(), roomCode, "history", 1, "easy", 30)
	require.NoError(t, err)
	qs, err := s.GetQuestions(gameID)
	require.NoError(t, err)

	asked := time.Now().Add(-5 * time.Minute)
	require.NoError(t, s.MarkQuestionAsked(qs[0].ID, asked))

	result, err := engine.ScoreAnswer(roomCode, "alice", qs[0].ID, "a", asked.Add(90*time.Second).UnixMilli())
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Zero(t, result.Points)

	rows, err := engine.Leaderboard(roomCode)
	require.NoError(t, err)
	byName := map[string]*LeaderboardRow{}
	for _, r := range rows {
		byName[r.Username] = r
	}
	assert.Equal(t, 1, byName["alice"].CorrectAnswers)
	assert.Zero(t, byName["alice"].Score)
}

func TestScorePoints(t *testing.T) {
	askedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asked := sql.NullTime{Time: askedAt, Valid: true}

	testCases := []struct {
		desc        string
		askedAt     sql.NullTime
		timer       int
		submittedAt time.Time
		want        int
	}{
		{desc: "never marked asked", askedAt: sql.NullTime{}, timer: 30, submittedAt: askedAt, want: 100},
		{desc: "zero timer", askedAt: asked, timer: 0, submittedAt: askedAt.Add(time.Hour), want: 100},
		{desc: "instant answer", askedAt: asked, timer: 30, submittedAt: askedAt, want: 100},
		{desc: "two seconds in", askedAt: asked, timer: 30, submittedAt: askedAt.Add(2 * time.Second), want: 93},
		{desc: "halfway", askedAt: asked, timer: 30, submittedAt: askedAt.Add(15 * time.Second), want: 50},
		{desc: "at the buzzer", askedAt: asked, timer: 30, submittedAt: askedAt.Add(30 * time.Second), want: 0},
		{desc: "past the buzzer", askedAt: asked, timer: 30, submittedAt: askedAt.Add(45 * time.Second), want: 0},
		{desc: "clock skew before asked", askedAt: asked, timer: 30, submittedAt: askedAt.Add(-5 * time.Second), want: 100},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			q := &store.Question{Timer: tC.timer, AskedAt: tC.askedAt}
			assert.Equal(t, tC.want, scorePoints(q, tC.submittedAt.UnixMilli()))
		})
	}
}

func TestScorePoints_MonotoneDecay(t *testing.T) {
	askedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &store.Question{Timer: 30, AskedAt: sql.NullTime{Time: askedAt, Valid: true}}

	prev := 101
	for elapsed := 0; elapsed <= 35; elapsed++ {
		points := scorePoints(q, askedAt.Add(time.Duration(elapsed)*time.Second).UnixMilli())
		assert.LessOrEqual(t, points, prev, "points must not increase with latency")
		assert.GreaterOrEqual(t, points, 0)
		assert.LessOrEqual(t, points, 100)
		prev = points
	}
}

func TestEndGame(t *testing.T) {
	engine, _, roomCode := newTestEngine(t)
	_, err := engine.CreateGame(context.Background(), roomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	require.NoError(t, engine.EndGame(roomCode))

	_, err = engine.CurrentGameStatus(roomCode)
	assert.ErrorIs(t, err, ErrNoCurrentGame)

	err = engine.EndGame(roomCode)
	assert.ErrorIs(t, err, ErrNoCurrentGame)
}

func TestRoster_ExcludesInactive(t *testing.T) {
	engine, s, roomCode := newTestEngine(t)
	_, err := s.SetParticipantStatus(roomCode, "bob", store.ParticipantInactive)
	require.NoError(t, err)

	players, err := engine.Roster(roomCode)
	require.NoError(t, err)
	usernames := make([]string, len(players))
	hostSeen := false
	for i, p := range players {
		usernames[i] = p.Username
		if p.Username == "host" {
			hostSeen = p.IsHost
		}
	}
	assert.ElementsMatch(t, []string{"host", "alice"}, usernames)
	assert.True(t, hostSeen)
}
