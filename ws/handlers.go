package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"quizio/auth"
	"quizio/game"
	"quizio/store"
)

// Every handler follows the same contract: validate required fields (missing
// field → error frame, no mutation), perform at most one coherent transition
// through the store/engine, then finish with zero or more sends. Nothing a
// handler computes is consumed outside the dispatch loop.

func (m *Manager) handlePlayerReady(client *Client, room *Room, payload json.RawMessage) {
	var p playerReadyPayload
	if payload != nil {
		if err := json.Unmarshal(payload, &p); err != nil {
			m.sendError(client, "Invalid payload.")
			return
		}
	}
	username := auth.SanitizeUsername(p.Username)
	if username == "" {
		m.sendError(client, "username is required")
		return
	}

	if m.gameInProgress(client, room.roomCode) {
		m.sendError(client, "Game has already started")
		return
	}

	room.Identify(client, username)

	changed, err := m.store.SetParticipantStatus(room.roomCode, username, store.ParticipantReady)
	if err != nil {
		m.internalError(client, room, "player_ready", err)
		return
	}
	if changed {
		m.broadcast(room, EventPlayerReady, usernamePayload{Username: username})
	}
	m.broadcastRoster(client, room)
}

func (m *Manager) handlePlayerWaiting(client *Client, room *Room) {
	username := client.Username()
	if username == "" {
		m.sendError(client, "You need to be ready to wait.")
		return
	}

	if m.gameInProgress(client, room.roomCode) {
		m.sendError(client, "Game has already started")
		return
	}

	changed, err := m.store.SetParticipantStatus(room.roomCode, username, store.ParticipantWaiting)
	if err != nil {
		m.internalError(client, room, "player_waiting", err)
		return
	}
	if changed {
		m.broadcast(room, EventPlayerWaiting, usernamePayload{Username: username})
	}
	m.broadcastRoster(client, room)
}

func (m *Manager) handlePlayerMessage(client *Client, room *Room, payload json.RawMessage) {
	var p playerMessagePayload
	if payload == nil || json.Unmarshal(payload, &p) != nil {
		m.sendError(client, "Invalid payload.")
		return
	}
	if p.Message == "" {
		m.sendError(client, "message is required")
		return
	}
	if p.Username == "" {
		p.Username = client.Username()
	}
	m.broadcast(room, EventPlayerMessage, playerMessagePayload{
		Username: auth.SanitizeUsername(p.Username),
		Message:  p.Message,
	})
}

func (m *Manager) handleKickPlayer(client *Client, room *Room, payload json.RawMessage) {
	var p kickPlayerPayload
	if payload == nil || json.Unmarshal(payload, &p) != nil {
		m.sendError(client, "Invalid payload.")
		return
	}
	identity, ok := m.requireToken(client, p.Token)
	if !ok {
		return
	}
	if p.Username == "" {
		m.sendError(client, "username is required")
		return
	}
	if p.Username == identity.Username {
		m.sendError(client, "You cannot kick yourself.")
		return
	}

	if err := m.store.RemoveParticipant(room.roomCode, p.Username); err != nil {
		m.internalError(client, room, "kick_player", err)
		return
	}

	// Detach the target's session identity first so its disconnect cleanup
	// does not fire a second, regular player-exit broadcast.
	if target := room.ClientByUsername(p.Username); target != nil {
		room.ClearIdentity(target)
		target.conn.Close()
	}

	m.broadcast(room, EventPlayerKicked, usernamePayload{Username: p.Username})
	m.broadcastRoster(client, room)
	m.logger.Info("player kicked",
		zap.String("room", room.roomCode),
		zap.String("username", p.Username),
		zap.String("by", identity.Username),
	)
}

func (m *Manager) handleNextQuestion(client *Client, room *Room, payload json.RawMessage) {
	var p tokenPayload
	if payload != nil {
		if err := json.Unmarshal(payload, &p); err != nil {
			m.sendError(client, "Invalid payload.")
			return
		}
	}
	if _, ok := m.requireToken(client, p.Token); !ok {
		return
	}

	question, err := m.engine.AdvanceQuestion(room.roomCode)
	if errors.Is(err, game.ErrGameOver) {
		m.broadcast(room, EventAllQuestionsDone, nil)
		return
	}
	if err != nil {
		m.internalError(client, room, "next_question", err)
		return
	}
	m.broadcast(room, EventNextQuestionOut, question)
}

func (m *Manager) handleQuestionAnswered(client *Client, room *Room, payload json.RawMessage) {
	username := client.Username()
	if username == "" {
		m.sendError(client, "Username is required.")
		return
	}

	var p questionAnsweredPayload
	if payload == nil || json.Unmarshal(payload, &p) != nil {
		m.sendError(client, "Invalid payload.")
		return
	}
	if p.QuestionID == 0 {
		m.sendError(client, "questionId is required.")
		return
	}
	if p.Timestamp == 0 {
		m.sendError(client, "timestamp is required.")
		return
	}

	result, err := m.engine.ScoreAnswer(room.roomCode, username, p.QuestionID, p.SubmittedAnswer, p.Timestamp)
	switch {
	case errors.Is(err, game.ErrQuestionNotFound):
		m.sendError(client, fmt.Sprintf("Invalid question id: %d", p.QuestionID))
		return
	case errors.Is(err, game.ErrDuplicateAnswer):
		m.sendError(client, "You have already answered this question.")
		return
	case errors.Is(err, game.ErrNoCurrentGame):
		m.sendError(client, "No game found for the room.")
		return
	case err != nil:
		m.internalError(client, room, "question_answered", err)
		return
	}

	// Verdict goes to the submitter only; the room sees the new standings.
	m.sendToCaller(client, EventAnswerValidation, result)

	rows, err := m.engine.Leaderboard(room.roomCode)
	if err != nil {
		m.internalError(client, room, "question_answered", err)
		return
	}
	m.broadcast(room, EventLeaderboardOut, rows)
}

func (m *Manager) handleLeaderboardUpdate(client *Client, room *Room) {
	rows, err := m.engine.Leaderboard(room.roomCode)
	if errors.Is(err, game.ErrNoCurrentGame) {
		m.sendError(client, "No active games found.")
		return
	}
	if err != nil {
		m.internalError(client, room, "leaderboard_update", err)
		return
	}
	m.broadcast(room, EventLeaderboardOut, rows)
}

func (m *Manager) handleHostStartingGame(client *Client, room *Room, payload json.RawMessage) {
	var p tokenPayload
	if payload != nil {
		if err := json.Unmarshal(payload, &p); err != nil {
			m.sendError(client, "Invalid payload.")
			return
		}
	}
	identity, ok := m.requireToken(client, p.Token)
	if !ok {
		return
	}

	// A verified start marks this session as the host connection, so a later
	// drop-off tears the room down.
	client.markHost()
	if client.Username() == "" {
		room.Identify(client, identity.Username)
	}

	m.broadcast(room, EventHostStartedGame, nil)
}

func (m *Manager) handleHostEndingGame(client *Client, room *Room, payload json.RawMessage) {
	var p tokenPayload
	if payload != nil {
		if err := json.Unmarshal(payload, &p); err != nil {
			m.sendError(client, "Invalid payload.")
			return
		}
	}
	if _, ok := m.requireToken(client, p.Token); !ok {
		return
	}

	err := m.engine.EndGame(room.roomCode)
	if errors.Is(err, game.ErrNoCurrentGame) {
		m.sendError(client, "No active games found.")
		return
	}
	if err != nil {
		m.internalError(client, room, "host_ending_game", err)
		return
	}
	m.broadcast(room, EventHostEndedGame, nil)
}

func (m *Manager) broadcastRoster(client *Client, room *Room) {
	players, err := m.engine.Roster(room.roomCode)
	if err != nil {
		m.internalError(client, room, "all_players", err)
		return
	}
	m.broadcast(room, EventAllPlayersOut, allPlayersPayload{Players: players})
}

// requireToken enforces the privileged-event contract: missing token and
// failed verification each produce an error frame and no state change.
func (m *Manager) requireToken(client *Client, token string) (*auth.Identity, bool) {
	if token == "" {
		m.sendError(client, "No token found.")
		return nil, false
	}
	identity, err := m.verifier.VerifyToken(token)
	if err != nil {
		m.sendError(client, "Invalid token.")
		return nil, false
	}
	return identity, true
}

func (m *Manager) gameInProgress(client *Client, roomCode string) bool {
	status, err := m.engine.CurrentGameStatus(roomCode)
	if errors.Is(err, game.ErrNoCurrentGame) {
		return false
	}
	if err != nil {
		// Integrity failures surface as a generic error via the caller's
		// follow-up store access; an in-progress guess is the safe answer.
		m.logger.Error("failed to read game status", zap.String("room", roomCode), zap.Error(err))
		return true
	}
	return status == game.StatusInProgress
}

// internalError is the per-connection guard for unexpected failures: log with
// context, send a generic frame to the caller only, keep the connection open.
func (m *Manager) internalError(client *Client, room *Room, event string, err error) {
	m.logger.Error("event handler failed",
		zap.String("room", room.roomCode),
		zap.String("event", event),
		zap.Error(err),
	)
	m.sendError(client, "Something went wrong.")
}
