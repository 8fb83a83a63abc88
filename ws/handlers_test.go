package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizio/auth"
	"quizio/game"
	"quizio/questions"
	"quizio/store"
)

type testGenerator struct{}

func (testGenerator) Generate(ctx context.Context, topic string, subtopics []string, n int, difficulty string) ([]questions.Question, error) {
	out := make([]questions.Question, n)
	for i := range out {
		out[i] = questions.Question{
			Question: fmt.Sprintf("%s question %d", topic, i+1),
			Options:  []string{"a", "b", "c", "d"},
			Answer:   "a",
		}
	}
	return out, nil
}

type testEnv struct {
	manager  *Manager
	store    *store.SQLiteStore
	engine   *game.Engine
	rooms    *game.Rooms
	tokens   *auth.TokenService
	roomCode string
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tokens := auth.NewTokenService("test-secret")
	engine := game.NewEngine(s, testGenerator{})
	rooms := game.NewRooms(s)
	manager := NewManager(engine, rooms, s, tokens, zap.NewNop())

	hostID, err := s.CreateUser("host", "hash")
	require.NoError(t, err)
	info, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)
	token, err := tokens.IssueToken(hostID, "host")
	require.NoError(t, err)

	return &testEnv{
		manager:  manager,
		store:    s,
		engine:   engine,
		rooms:    rooms,
		tokens:   tokens,
		roomCode: info.RoomCode,
		token:    token,
	}
}

func (e *testEnv) connect(t *testing.T) (*Client, *Room) {
	t.Helper()
	client := &Client{send: make(chan []byte, 64)}
	room := e.manager.GetRoom(e.roomCode)
	room.AddClient(client)
	return client, room
}

func (e *testEnv) dispatch(t *testing.T, client *Client, room *Room, eventType string, payload interface{}) {
	t.Helper()
	env := &Envelope{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = data
	}
	e.manager.dispatch(client, room, env)
}

type recvdFrame struct {
	Message struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Error   string          `json:"error"`
	} `json:"message"`
}

func recvFrame(t *testing.T, client *Client) recvdFrame {
	t.Helper()
	var f recvdFrame
	select {
	case data := <-client.send:
		require.NoError(t, json.Unmarshal(data, &f))
	default:
		t.Fatal("expected a queued frame")
	}
	return f
}

func assertNoFrame(t *testing.T, client *Client) {
	t.Helper()
	select {
	case data := <-client.send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)

	e.dispatch(t, client, room, "bogus_event", nil)

	f := recvFrame(t, client)
	assert.Equal(t, "Unknown event type: bogus_event", f.Message.Error)
}

func TestHandlePlayerReady(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	client, room := e.connect(t)
	other, _ := e.connect(t)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})

	ready := recvFrame(t, client)
	assert.Equal(t, EventPlayerReady, ready.Message.Type)
	roster := recvFrame(t, client)
	assert.Equal(t, EventAllPlayersOut, roster.Message.Type)

	// The other connection sees both broadcasts too.
	assert.Equal(t, EventPlayerReady, recvFrame(t, other).Message.Type)
	assert.Equal(t, EventAllPlayersOut, recvFrame(t, other).Message.Type)

	assert.Equal(t, "alice", client.Username())
	participants, err := e.store.ListParticipants(e.roomCode, "")
	require.NoError(t, err)
	for _, p := range participants {
		if p.Username == "alice" {
			assert.Equal(t, store.ParticipantReady, p.Status)
		}
	}
}

func TestHandlePlayerReady_SecondReadyOnlyRebroadcastsRoster(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})
	recvFrame(t, client)
	recvFrame(t, client)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})
	roster := recvFrame(t, client)
	assert.Equal(t, EventAllPlayersOut, roster.Message.Type)
	assertNoFrame(t, client)
}

func TestHandlePlayerReady_MissingUsername(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{})

	f := recvFrame(t, client)
	assert.Equal(t, "username is required", f.Message.Error)
	assertNoFrame(t, client)
}

func TestHandlePlayerReady_GameInProgress(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.engine.CreateGame(context.Background(), e.roomCode, "history", 2, "easy", 30)
	require.NoError(t, err)
	_, err = e.store.SetParticipantStatus(e.roomCode, "host", store.ParticipantReady)
	require.NoError(t, err)
	_, err = e.engine.StartGame(e.roomCode)
	require.NoError(t, err)

	client, room := e.connect(t)
	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})

	f := recvFrame(t, client)
	assert.Equal(t, "Game has already started", f.Message.Error)
	assert.Empty(t, client.Username(), "a rejected ready must not identify the session")
}

func TestHandlePlayerWaiting(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	client, room := e.connect(t)

	// Waiting before any ready has no session identity to act on.
	e.dispatch(t, client, room, EventPlayerWaiting, nil)
	f := recvFrame(t, client)
	assert.Equal(t, "You need to be ready to wait.", f.Message.Error)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})
	recvFrame(t, client)
	recvFrame(t, client)

	e.dispatch(t, client, room, EventPlayerWaiting, nil)
	assert.Equal(t, EventPlayerWaiting, recvFrame(t, client).Message.Type)
	assert.Equal(t, EventAllPlayersOut, recvFrame(t, client).Message.Type)
}

func TestHandleNextQuestion_TokenChecks(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventNextQuestion, tokenPayload{})
	assert.Equal(t, "No token found.", recvFrame(t, client).Message.Error)

	e.dispatch(t, client, room, EventNextQuestion, tokenPayload{Token: "forged"})
	assert.Equal(t, "Invalid token.", recvFrame(t, client).Message.Error)
}

func TestHandleNextQuestion_Flow(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.engine.CreateGame(context.Background(), e.roomCode, "history", 2, "easy", 30)
	require.NoError(t, err)
	client, room := e.connect(t)

	for i := 0; i < 2; i++ {
		e.dispatch(t, client, room, EventNextQuestion, tokenPayload{Token: e.token})
		f := recvFrame(t, client)
		require.Equal(t, EventNextQuestionOut, f.Message.Type)

		var q game.NextQuestion
		require.NoError(t, json.Unmarshal(f.Message.Payload, &q))
		assert.Equal(t, fmt.Sprintf("history question %d", i+1), q.Question)
		assert.Equal(t, i == 1, q.IsLastQuestion)
	}

	e.dispatch(t, client, room, EventNextQuestion, tokenPayload{Token: e.token})
	assert.Equal(t, EventAllQuestionsDone, recvFrame(t, client).Message.Type)
}

func TestHandleQuestionAnswered(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	gameID, err := e.engine.CreateGame(context.Background(), e.roomCode, "history", 1, "easy", 30)
	require.NoError(t, err)
	qs, err := e.store.GetQuestions(gameID)
	require.NoError(t, err)

	client, room := e.connect(t)

	// Answering without a session identity is rejected.
	e.dispatch(t, client, room, EventQuestionAnswered, questionAnsweredPayload{QuestionID: qs[0].ID, SubmittedAnswer: "a", Timestamp: 1})
	assert.Equal(t, "Username is required.", recvFrame(t, client).Message.Error)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})
	recvFrame(t, client)
	recvFrame(t, client)

	e.dispatch(t, client, room, EventQuestionAnswered, questionAnsweredPayload{QuestionID: qs[0].ID, SubmittedAnswer: "a"})
	assert.Equal(t, "timestamp is required.", recvFrame(t, client).Message.Error)

	e.dispatch(t, client, room, EventQuestionAnswered, questionAnsweredPayload{QuestionID: 99999, SubmittedAnswer: "a", Timestamp: 1})
	assert.Equal(t, "Invalid question id: 99999", recvFrame(t, client).Message.Error)

	e.dispatch(t, client, room, EventQuestionAnswered, questionAnsweredPayload{QuestionID: qs[0].ID, SubmittedAnswer: "a", Timestamp: 1})
	validation := recvFrame(t, client)
	require.Equal(t, EventAnswerValidation, validation.Message.Type)
	var result game.AnswerResult
	require.NoError(t, json.Unmarshal(validation.Message.Payload, &result))
	assert.True(t, result.IsCorrect)
	assert.Equal(t, "a", result.CorrectAnswer)
	assert.Equal(t, EventLeaderboardOut, recvFrame(t, client).Message.Type)

	// A second submission for the same question bounces without new frames
	// beyond the rejection.
	e.dispatch(t, client, room, EventQuestionAnswered, questionAnsweredPayload{QuestionID: qs[0].ID, SubmittedAnswer: "b", Timestamp: 2})
	assert.Equal(t, "You have already answered this question.", recvFrame(t, client).Message.Error)
	assertNoFrame(t, client)
}

func TestHandleLeaderboardUpdate_NoGame(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventLeaderboardUpdate, nil)
	assert.Equal(t, "No active games found.", recvFrame(t, client).Message.Error)
}

func TestHandleKickPlayer(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventKickPlayer, kickPlayerPayload{Token: e.token, Username: "host"})
	assert.Equal(t, "You cannot kick yourself.", recvFrame(t, client).Message.Error)

	e.dispatch(t, client, room, EventKickPlayer, kickPlayerPayload{Token: e.token, Username: "alice"})
	kicked := recvFrame(t, client)
	assert.Equal(t, EventPlayerKicked, kicked.Message.Type)
	assert.Equal(t, EventAllPlayersOut, recvFrame(t, client).Message.Type)

	participants, err := e.store.ListParticipants(e.roomCode, "")
	require.NoError(t, err)
	for _, p := range participants {
		assert.NotEqual(t, "alice", p.Username)
	}
}

func TestHandleHostEndingGame(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.engine.CreateGame(context.Background(), e.roomCode, "history", 2, "easy", 30)
	require.NoError(t, err)
	client, room := e.connect(t)

	e.dispatch(t, client, room, EventHostEndingGame, tokenPayload{Token: e.token})
	assert.Equal(t, EventHostEndedGame, recvFrame(t, client).Message.Type)

	// With the game finished, ending again reports there is nothing to end.
	e.dispatch(t, client, room, EventHostEndingGame, tokenPayload{Token: e.token})
	assert.Equal(t, "No active games found.", recvFrame(t, client).Message.Error)
}

func TestHandleDisconnect_Player(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.rooms.JoinRoom(e.roomCode, "alice", "", "")
	require.NoError(t, err)
	client, room := e.connect(t)
	observer, _ := e.connect(t)

	e.dispatch(t, client, room, EventPlayerReady, playerReadyPayload{Username: "alice"})
	recvFrame(t, observer)
	recvFrame(t, observer)

	e.manager.handleDisconnect(client, room)

	assert.Equal(t, EventPlayerDisconnected, recvFrame(t, observer).Message.Type)
	assert.Equal(t, EventAllPlayersOut, recvFrame(t, observer).Message.Type)

	participants, err := e.store.ListParticipants(e.roomCode, "")
	require.NoError(t, err)
	for _, p := range participants {
		if p.Username == "alice" {
			assert.Equal(t, store.ParticipantInactive, p.Status)
		}
	}

	room.RemoveClient(client)
}

func TestHandleDisconnect_HostEndsRoom(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)
	client.setUsername("host")
	client.markHost()
	observer, _ := e.connect(t)

	e.manager.handleDisconnect(client, room)

	assert.Equal(t, EventPlayerDisconnected, recvFrame(t, observer).Message.Type)
	assert.Equal(t, EventAllPlayersOut, recvFrame(t, observer).Message.Type)
	assert.Equal(t, EventHostEndedGame, recvFrame(t, observer).Message.Type)

	got, err := e.store.FindRoomByCode(e.roomCode)
	require.NoError(t, err)
	assert.Equal(t, store.RoomStatusEnded, got.Status)
}

func TestHandleNextQuestion_MalformedPayload(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)

	// A broken payload is reported as such, not as a missing token.
	for _, event := range []string{EventNextQuestion, EventHostStartingGame, EventHostEndingGame} {
		e.manager.dispatch(client, room, &Envelope{Type: event, Payload: json.RawMessage(`{"token":42}`)})
		assert.Equal(t, "Invalid payload.", recvFrame(t, client).Message.Error, event)
	}
}

func TestManager_PurgesEmptyRooms(t *testing.T) {
	e := newTestEnv(t)

	a := &Client{send: make(chan []byte, 16)}
	b := &Client{send: make(chan []byte, 16)}
	room := e.manager.register(e.roomCode, a)
	require.Same(t, room, e.manager.register(e.roomCode, b))

	e.manager.removeClient(room, a)
	e.manager.mu.Lock()
	_, present := e.manager.rooms[e.roomCode]
	e.manager.mu.Unlock()
	assert.True(t, present, "a room with clients left must stay registered")

	e.manager.removeClient(room, b)
	e.manager.mu.Lock()
	_, present = e.manager.rooms[e.roomCode]
	e.manager.mu.Unlock()
	assert.False(t, present, "the last disconnect must purge the room")

	// A reconnect after the purge gets a fresh broadcast group.
	c := &Client{send: make(chan []byte, 16)}
	assert.NotSame(t, room, e.manager.register(e.roomCode, c))
}

func TestHandleDisconnect_UnidentifiedIsSilent(t *testing.T) {
	e := newTestEnv(t)
	client, room := e.connect(t)
	observer, _ := e.connect(t)

	e.manager.handleDisconnect(client, room)
	assertNoFrame(t, observer)
}
