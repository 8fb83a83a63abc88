package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizio/auth"
	"quizio/game"
	"quizio/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Manager owns the room-code → broadcast-group registry and drives one
// reader/writer goroutine pair per connection. It is the only component that
// touches the transport; handlers stay transport-agnostic.
type Manager struct {
	rooms    map[string]*Room
	mu       sync.Mutex
	engine   *game.Engine
	rooming  *game.Rooms
	store    store.Store
	verifier auth.Verifier
	logger   *zap.Logger
}

func NewManager(engine *game.Engine, rooming *game.Rooms, st store.Store, verifier auth.Verifier, logger *zap.Logger) *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		engine:   engine,
		rooming:  rooming,
		store:    st,
		verifier: verifier,
		logger:   logger,
	}
}

func (m *Manager) GetRoom(roomCode string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomCode]
	if !exists {
		room = NewRoom(roomCode, m.logger)
		m.rooms[roomCode] = room
	}
	return room
}

// register binds a connection to its room under the manager lock, so it cannot
// land in a room that a concurrent removeClient just purged.
func (m *Manager) register(roomCode string, client *Client) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomCode]
	if !exists {
		room = NewRoom(roomCode, m.logger)
		m.rooms[roomCode] = room
	}
	room.AddClient(client)
	return room
}

// removeClient drops a connection and purges the room from the registry once
// its last client is gone; emptiness is re-checked under the manager lock so a
// racing register either lands before the purge or gets a fresh room after it.
func (m *Manager) removeClient(room *Room, client *Client) {
	room.RemoveClient(client)

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[room.roomCode]; ok && current == room && room.ClientCount() == 0 {
		delete(m.rooms, room.roomCode)
	}
}

// HandleConnection registers a freshly upgraded connection with its room's
// broadcast group. A non-nil host identity (from a verified connect token)
// pre-identifies the session, so a host drop-off can end the room even if the
// host never sent a ready event.
func (m *Manager) HandleConnection(conn *websocket.Conn, roomCode string, host *auth.Identity) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	if host != nil {
		client.setUsername(host.Username)
		client.markHost()
	}

	room := m.register(roomCode, client)
	m.logger.Info("client connected",
		zap.String("room", roomCode),
		zap.Bool("host", host != nil),
	)

	go m.writePump(client)
	go m.readPump(client, room)
}

func (m *Manager) readPump(client *Client, room *Room) {
	defer func() {
		// Runs on any exit path, clean close or not. Disconnect cleanup
		// must not depend on a final message from the client.
		m.handleDisconnect(client, room)
		m.removeClient(room, client)
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("websocket read error", zap.String("room", room.roomCode), zap.Error(err))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			// An unparseable envelope drops the connection; a well-formed
			// envelope with an unknown type only gets an error frame.
			m.logger.Warn("dropping connection on malformed envelope",
				zap.String("room", room.roomCode), zap.Error(err))
			break
		}

		m.dispatch(client, room, &env)
	}
}

func (m *Manager) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes an inbound envelope to its handler. A panic in one
// connection's handler is contained here and never reaches other connections.
func (m *Manager) dispatch(client *Client, room *Room, env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in event handler",
				zap.String("room", room.roomCode),
				zap.String("event", env.Type),
				zap.Any("panic", r),
			)
			m.sendError(client, "Something went wrong.")
		}
	}()

	switch env.Type {
	case EventPlayerReady:
		m.handlePlayerReady(client, room, env.Payload)
	case EventPlayerWaiting:
		m.handlePlayerWaiting(client, room)
	case EventPlayerMessage:
		m.handlePlayerMessage(client, room, env.Payload)
	case EventKickPlayer:
		m.handleKickPlayer(client, room, env.Payload)
	case EventNextQuestion:
		m.handleNextQuestion(client, room, env.Payload)
	case EventQuestionAnswered:
		m.handleQuestionAnswered(client, room, env.Payload)
	case EventLeaderboardUpdate:
		m.handleLeaderboardUpdate(client, room)
	case EventAllPlayers:
		m.broadcastRoster(client, room)
	case EventHostStartingGame:
		m.handleHostStartingGame(client, room, env.Payload)
	case EventHostEndingGame:
		m.handleHostEndingGame(client, room, env.Payload)
	default:
		m.sendError(client, "Unknown event type: "+env.Type)
	}
}

// handleDisconnect treats a vanished connection as an implicit transition to
// inactive, and a vanished host as the end of the room.
func (m *Manager) handleDisconnect(client *Client, room *Room) {
	username := client.Username()
	if username == "" {
		return
	}

	m.broadcast(room, EventPlayerDisconnected, usernamePayload{Username: username})

	if _, err := m.store.SetParticipantStatus(room.roomCode, username, store.ParticipantInactive); err != nil {
		m.logger.Error("failed to deactivate participant on disconnect",
			zap.String("room", room.roomCode), zap.String("username", username), zap.Error(err))
	}
	m.broadcastRoster(client, room)

	if client.IsHost() {
		m.broadcast(room, EventHostEndedGame, nil)
		if err := m.rooming.EndRoom(room.roomCode); err != nil {
			m.logger.Error("failed to end room on host disconnect",
				zap.String("room", room.roomCode), zap.Error(err))
		}
		m.logger.Info("room ended on host disconnect", zap.String("room", room.roomCode))
	}
}

func (m *Manager) sendToCaller(client *Client, eventType string, payload interface{}) {
	data, err := marshalFrame(eventType, payload)
	if err != nil {
		m.logger.Error("failed to marshal frame", zap.String("event", eventType), zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (m *Manager) sendError(client *Client, message string) {
	data, err := marshalError(message)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (m *Manager) broadcast(room *Room, eventType string, payload interface{}) {
	data, err := marshalFrame(eventType, payload)
	if err != nil {
		m.logger.Error("failed to marshal frame", zap.String("event", eventType), zap.Error(err))
		return
	}
	room.Broadcast(data)
}
