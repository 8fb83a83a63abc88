package ws

import "encoding/json"

// Inbound event types.
const (
	EventPlayerReady       = "player_ready"
	EventPlayerWaiting     = "player_waiting"
	EventPlayerMessage     = "player_message"
	EventKickPlayer        = "kick_player"
	EventNextQuestion      = "send_next_question"
	EventQuestionAnswered  = "send_question_answered"
	EventLeaderboardUpdate = "send_leaderboard_update"
	EventAllPlayers        = "send_all_players"
	EventHostStartingGame  = "send_host_starting_game"
	EventHostEndingGame    = "send_host_ending_game"
)

// Outbound event types.
const (
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerKicked       = "player_kicked"
	EventAllPlayersOut      = "all_players"
	EventNextQuestionOut    = "next_question"
	EventAllQuestionsDone   = "all_questions_done"
	EventAnswerValidation   = "answer_validation"
	EventLeaderboardOut     = "leaderboard_update"
	EventHostStartedGame    = "host_started_game"
	EventHostEndedGame      = "host_ended_game"
)

// Envelope is the inbound frame: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound frames wrap everything in a "message" object; errors carry an
// "error" key instead of type/payload.
type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type outFrame struct {
	Message outMessage `json:"message"`
}

type errFrame struct {
	Message struct {
		Error string `json:"error"`
	} `json:"message"`
}

func marshalFrame(eventType string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal(outFrame{Message: outMessage{Type: eventType, Payload: payload}})
}

func marshalError(message string) ([]byte, error) {
	var f errFrame
	f.Message.Error = message
	return json.Marshal(f)
}

// Inbound payloads.

type playerReadyPayload struct {
	Username string `json:"username"`
}

type playerMessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type kickPlayerPayload struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type questionAnsweredPayload struct {
	QuestionID      int64  `json:"questionId"`
	SubmittedAnswer string `json:"submittedAnswer"`
	Timestamp       int64  `json:"timestamp"`
}

// Outbound payloads not covered by game types.

type usernamePayload struct {
	Username string `json:"username"`
}

type allPlayersPayload struct {
	Players interface{} `json:"players"`
}
