package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one connected participant. username and isHost are session-local
// identity: username is set once by the first player_ready (or a verified host
// token on connect) and read by later handlers on the same connection. A kick
// clears the target's identity from the kicker's goroutine while the target's
// own goroutine keeps reading it, so both fields live behind the client's mutex.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	username string
	isHost   bool
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHost
}

func (c *Client) setUsername(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

func (c *Client) markHost() {
	c.mu.Lock()
	c.isHost = true
	c.mu.Unlock()
}

// Room is the broadcast group for one room code.
type Room struct {
	roomCode   string
	clients    map[*Client]bool
	byUsername map[string]*Client
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewRoom(roomCode string, logger *zap.Logger) *Room {
	return &Room{
		roomCode:   roomCode,
		clients:    make(map[*Client]bool),
		byUsername: make(map[string]*Client),
		logger:     logger,
	}
}

func (r *Room) AddClient(client *Client) {
	username := client.Username()
	r.mu.Lock()
	r.clients[client] = true
	if username != "" {
		r.byUsername[username] = client
	}
	r.mu.Unlock()
}

func (r *Room) RemoveClient(client *Client) {
	username := client.Username()
	r.mu.Lock()
	if _, ok := r.clients[client]; ok {
		delete(r.clients, client)
		if username != "" && r.byUsername[username] == client {
			delete(r.byUsername, username)
		}
		close(client.send)
	}
	r.mu.Unlock()
}

// Identify records the session's username so kicks can find the connection.
func (r *Room) Identify(client *Client, username string) {
	client.setUsername(username)
	r.mu.Lock()
	r.byUsername[username] = client
	r.mu.Unlock()
}

// ClearIdentity detaches the session from its username, e.g. right before a
// forced disconnect so the kick does not double as a regular player exit.
func (r *Room) ClearIdentity(client *Client) {
	username := client.Username()
	r.mu.Lock()
	if username != "" && r.byUsername[username] == client {
		delete(r.byUsername, username)
	}
	r.mu.Unlock()
	client.setUsername("")
}

func (r *Room) ClientByUsername(username string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUsername[username]
}

// Broadcast fans a prepared frame out to every connection in the room.
// Delivery order per connection follows send order; slow clients are skipped
// rather than allowed to stall the room.
func (r *Room) Broadcast(data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for client := range r.clients {
		select {
		case client.send <- data:
		default:
			r.logger.Warn("client send buffer full, dropping frame",
				zap.String("room", r.roomCode),
				zap.String("username", client.Username()),
			)
		}
	}
}

func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
