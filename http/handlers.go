package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizio/auth"
	"quizio/game"
	"quizio/questions"
	"quizio/store"
	"quizio/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin only; loosen behind a trusted reverse proxy if needed.
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

type Handlers struct {
	authService *auth.Service
	rooms       *game.Rooms
	engine      *game.Engine
	solo        *game.Solo
	subtopics   questions.SubtopicGenerator
	wsManager   *ws.Manager
	store       store.Store
	logger      *zap.Logger
}

func NewHandlers(authService *auth.Service, rooms *game.Rooms, engine *game.Engine, solo *game.Solo, subtopics questions.SubtopicGenerator, wsManager *ws.Manager, st store.Store, logger *zap.Logger) *Handlers {
	return &Handlers{
		authService: authService,
		rooms:       rooms,
		engine:      engine,
		solo:        solo,
		subtopics:   subtopics,
		wsManager:   wsManager,
		store:       st,
		logger:      logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Auth handlers

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.authService.Register(req.Username, req.Password); err != nil {
		switch err {
		case auth.ErrInvalidUsername, auth.ErrInvalidPassword, auth.ErrUserExists:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Room handlers

func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	info, err := h.rooms.CreateRoom(identity.UserID)
	if err != nil {
		h.logger.Error("room creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	status := http.StatusCreated
	if info.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"roomCode": info.RoomCode,
		"host": map[string]string{
			"userName": info.HostName,
			"role":     "host",
		},
		"ws": "/ws/rooms/" + info.RoomCode,
	})
}

func (h *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomCode    string `json:"roomCode"`
		Username    string `json:"username"`
		AvatarStyle string `json:"avatarStyle"`
		AvatarSeed  string `json:"avatarSeed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = auth.SanitizeUsername(req.Username)
	if req.RoomCode == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "roomCode and username are required")
		return
	}

	info, err := h.rooms.JoinRoom(req.RoomCode, req.Username, req.AvatarStyle, req.AvatarSeed)
	switch {
	case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, game.ErrRoomEnded):
		writeError(w, http.StatusNotFound, "Room not found or has already been closed.")
		return
	case errors.Is(err, game.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "Username is already taken.")
		return
	case err != nil:
		h.logger.Error("room join failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to join room")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"userId":   info.UserID,
		"username": info.Username,
		"roomCode": info.RoomCode,
		"role":     "participant",
		"ws":       "/ws/rooms/" + info.RoomCode,
	})
}

// Game handlers

func (h *Handlers) CreateGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Topic           string `json:"topic"`
		N               int    `json:"n"`
		Difficulty      string `json:"difficulty"`
		TimePerQuestion int    `json:"timePerQuestion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := h.store.FindRoomByHost(identity.UserID)
	if err != nil {
		h.logger.Error("host room lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "No active rooms found for user.")
		return
	}

	gameID, err := h.engine.CreateGame(r.Context(), room.RoomCode, auth.SanitizeTopic(req.Topic), req.N, req.Difficulty, req.TimePerQuestion)
	switch {
	case errors.Is(err, game.ErrInvalidTopic), errors.Is(err, game.ErrInvalidQuestionCount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("game creation failed", zap.String("room", room.RoomCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"gameId": gameID})
}

func (h *Handlers) StartGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	room, err := h.store.FindRoomByHost(identity.UserID)
	if err != nil {
		h.logger.Error("host room lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start game")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "You are not hosting any active rooms.")
		return
	}

	gameID, err := h.engine.StartGame(room.RoomCode)
	switch {
	case errors.Is(err, game.ErrNotAllReady):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, game.ErrNoCurrentGame):
		writeError(w, http.StatusNotFound, "No active games found.")
		return
	case err != nil:
		h.logger.Error("game start failed", zap.String("room", room.RoomCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start game")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"gameId": gameID})
}

func (h *Handlers) EndGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" {
		writeError(w, http.StatusBadRequest, "roomCode required")
		return
	}

	room, err := h.store.FindRoomByCode(req.RoomCode)
	if err != nil {
		h.logger.Error("room lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to end game")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if room.HostID != identity.UserID {
		writeError(w, http.StatusForbidden, "Only the host can end the game.")
		return
	}

	err = h.engine.EndGame(req.RoomCode)
	if errors.Is(err, game.ErrNoCurrentGame) {
		writeError(w, http.StatusNotFound, "No active games found.")
		return
	}
	if err != nil {
		h.logger.Error("game end failed", zap.String("room", req.RoomCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to end game")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "game_ended"})
}

// Single-player handlers

func (h *Handlers) Subtopics(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	topic := auth.SanitizeTopic(req.Topic)
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required.")
		return
	}

	subtopics, err := h.subtopics.GenerateSubtopics(r.Context(), topic)
	if err != nil {
		h.logger.Error("subtopic generation failed", zap.String("topic", topic), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate subtopics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"subtopics": subtopics})
}

func (h *Handlers) StartSoloGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Topic           string   `json:"topic"`
		Subtopics       []string `json:"subtopics"`
		N               int      `json:"n"`
		Difficulty      string   `json:"difficulty"`
		TimePerQuestion int      `json:"timePerQuestion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	gameID, err := h.solo.StartGame(r.Context(), identity.UserID, auth.SanitizeTopic(req.Topic), req.Subtopics, req.N, req.Difficulty, req.TimePerQuestion)
	switch {
	case errors.Is(err, game.ErrInvalidTopic), errors.Is(err, game.ErrInvalidQuestionCount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, game.ErrSoloGameActive):
		body := map[string]interface{}{"error": "You can only have a single game running"}
		if id, lookupErr := h.solo.CurrentGameID(identity.UserID); lookupErr == nil {
			body["gameId"] = id
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	case err != nil:
		h.logger.Error("solo game creation failed", zap.Int64("user", identity.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"gameId": gameID})
}

func (h *Handlers) SoloQuestions(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	views, err := h.solo.Questions(identity.UserID)
	if errors.Is(err, game.ErrNoSoloGame) {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}
	if err != nil {
		h.logger.Error("solo question listing failed", zap.Int64("user", identity.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": views})
}

func (h *Handlers) SoloAnswer(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		QuestionID int64  `json:"questionId"`
		Answer     string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.QuestionID == 0 {
		writeError(w, http.StatusBadRequest, "questionId required.")
		return
	}

	result, err := h.solo.CheckAnswer(identity.UserID, req.QuestionID, req.Answer)
	var outOfOrder *game.OutOfOrderAnswerError
	switch {
	case errors.Is(err, game.ErrNoSoloGame):
		writeError(w, http.StatusNotFound, "Game not found")
		return
	case errors.Is(err, game.ErrNoMoreQuestions):
		writeError(w, http.StatusBadRequest, "No more questions to answer")
		return
	case errors.Is(err, game.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, "Question not found")
		return
	case errors.Is(err, game.ErrDuplicateAnswer):
		writeError(w, http.StatusBadRequest, "You can only answer the current question")
		return
	case errors.As(err, &outOfOrder):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "You can only answer the current question",
			"question": outOfOrder.Current,
		})
		return
	case err != nil:
		h.logger.Error("solo answer failed", zap.Int64("user", identity.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to check answer")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleWebSocket upgrades a connection for one room. An unknown room code is
// rejected before the upgrade; a valid ?token= identifying the room's host
// pre-marks the connection as the host session.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomCode := mux.Vars(r)["roomCode"]

	room, err := h.store.FindRoomByCode(roomCode)
	if err != nil {
		h.logger.Error("room lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to open connection")
		return
	}
	if room == nil || room.Status == store.RoomStatusEnded {
		writeError(w, http.StatusUnauthorized, "Room not found or has already been closed.")
		return
	}

	var hostIdentity *auth.Identity
	if token := r.URL.Query().Get("token"); token != "" {
		if identity, err := h.authService.VerifyToken(token); err == nil && identity.UserID == room.HostID {
			hostIdentity = identity
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("room", roomCode), zap.Error(err))
		return
	}

	h.wsManager.HandleConnection(conn, roomCode, hostIdentity)
}
