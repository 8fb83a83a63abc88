package game

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizio/store"
)

func newTestRooms(t *testing.T) (*Rooms, *store.SQLiteStore, int64) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hostID, err := s.CreateUser("host", "hash")
	require.NoError(t, err)
	return NewRooms(s), s, hostID
}

func TestCreateRoom_IdempotentPerHost(t *testing.T) {
	rooms, s, hostID := newTestRooms(t)

	first, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Equal(t, "host", first.HostName)

	second, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.RoomCode, second.RoomCode)

	// The host sits in their own room, ready from the start.
	participants, err := s.ListParticipants(first.RoomCode, "")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.True(t, participants[0].IsHost)
	assert.Equal(t, store.ParticipantReady, participants[0].Status)
}

func TestCreateRoom_UnknownHost(t *testing.T) {
	rooms, _, _ := newTestRooms(t)
	_, err := rooms.CreateRoom(99999)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestCreateRoom_NewRoomAfterEnd(t *testing.T) {
	rooms, _, hostID := newTestRooms(t)

	first, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)
	require.NoError(t, rooms.EndRoom(first.RoomCode))

	second, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)
	assert.False(t, second.Existing)
	assert.NotEqual(t, first.RoomCode, second.RoomCode)
}

func TestJoinRoom(t *testing.T) {
	rooms, s, hostID := newTestRooms(t)
	room, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)

	info, err := rooms.JoinRoom(room.RoomCode, "alice", "Pixel", "seed42")
	require.NoError(t, err)
	assert.NotEmpty(t, info.UserID)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, room.RoomCode, info.RoomCode)

	participants, err := s.ListParticipants(room.RoomCode, "")
	require.NoError(t, err)
	require.Len(t, participants, 2)
}

func TestJoinRoom_DuplicateUsername(t *testing.T) {
	rooms, s, hostID := newTestRooms(t)
	room, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)

	_, err = rooms.JoinRoom(room.RoomCode, "alice", "", "")
	require.NoError(t, err)

	_, err = rooms.JoinRoom(room.RoomCode, "alice", "", "")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// The name frees up once its holder goes inactive.
	_, err = s.SetParticipantStatus(room.RoomCode, "alice", store.ParticipantInactive)
	require.NoError(t, err)
	_, err = rooms.JoinRoom(room.RoomCode, "alice", "", "")
	assert.NoError(t, err)
}

func TestJoinRoom_Errors(t *testing.T) {
	rooms, _, hostID := newTestRooms(t)
	room, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)

	_, err = rooms.JoinRoom("NOSUCHRM", "alice", "", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.NoError(t, rooms.EndRoom(room.RoomCode))
	_, err = rooms.JoinRoom(room.RoomCode, "alice", "", "")
	assert.ErrorIs(t, err, ErrRoomEnded)
}

func TestEndRoom_AbortsCurrentGame(t *testing.T) {
	rooms, s, hostID := newTestRooms(t)
	room, err := rooms.CreateRoom(hostID)
	require.NoError(t, err)

	engine := NewEngine(s, &fakeGenerator{})
	_, err = engine.CreateGame(context.Background(), room.RoomCode, "history", 3, "easy", 30)
	require.NoError(t, err)

	require.NoError(t, rooms.EndRoom(room.RoomCode))

	got, err := s.FindRoomByCode(room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, store.RoomStatusEnded, got.Status)

	_, err = s.FindCurrentGame(room.RoomCode)
	assert.ErrorIs(t, err, store.ErrNoCurrentGame)
}
