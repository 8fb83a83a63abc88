package game

import (
	"github.com/google/uuid"

	"quizio/store"
)

// Rooms handles room lifecycle: creation by a host, joining by players and
// guests, and teardown.
type Rooms struct {
	store store.Store
}

func NewRooms(store store.Store) *Rooms {
	return &Rooms{store: store}
}

// CreateRoom is idempotent per host: a host with a non-ended room gets that
// room back instead of a second one.
func (r *Rooms) CreateRoom(hostID int64) (*RoomInfo, error) {
	host, err := r.store.GetUserByID(hostID)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, ErrParticipantNotFound
	}

	room, err := r.store.FindRoomByHost(hostID)
	if err != nil {
		return nil, err
	}
	existing := room != nil
	if !existing {
		room, err = r.store.CreateRoom(hostID)
		if err != nil {
			return nil, err
		}
	}

	if _, err := r.store.UpsertParticipant(room.RoomCode, host.Username, "Circle", "", true); err != nil {
		return nil, err
	}
	if _, err := r.store.SetParticipantStatus(room.RoomCode, host.Username, store.ParticipantReady); err != nil {
		return nil, err
	}

	return &RoomInfo{RoomCode: room.RoomCode, HostName: host.Username, Existing: existing}, nil
}

// JoinRoom adds a guest identity to a room. The username must be free within
// the room; an inactive participant of the same name is reclaimed instead.
func (r *Rooms) JoinRoom(code, username, avatarStyle, avatarSeed string) (*JoinInfo, error) {
	room, err := r.store.FindRoomByCode(code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status == store.RoomStatusEnded {
		return nil, ErrRoomEnded
	}

	participants, err := r.store.ListParticipants(code, "")
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.Username == username && p.Status != store.ParticipantInactive {
			return nil, ErrUsernameTaken
		}
	}

	guestID := uuid.NewString()
	if err := r.store.CreateGuest(guestID, username, code); err != nil {
		return nil, err
	}
	if avatarStyle == "" {
		avatarStyle = "Circle"
	}
	if _, err := r.store.UpsertParticipant(code, username, avatarStyle, avatarSeed, false); err != nil {
		return nil, err
	}

	return &JoinInfo{UserID: guestID, Username: username, RoomCode: code}, nil
}

// EndRoom marks the room ended and aborts whatever game is still running in it.
func (r *Rooms) EndRoom(code string) error {
	if err := r.store.AbortActiveGames(code); err != nil {
		return err
	}
	return r.store.UpdateRoomStatus(code, store.RoomStatusEnded)
}
