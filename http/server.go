package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quizio/auth"
	"quizio/game"
	"quizio/questions"
	"quizio/store"
	"quizio/ws"
)

type Server struct {
	router   *mux.Router
	handlers *Handlers
	logger   *zap.Logger
}

func NewServer(authService *auth.Service, rooms *game.Rooms, engine *game.Engine, solo *game.Solo, subtopics questions.SubtopicGenerator, wsManager *ws.Manager, st store.Store, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	handlers := NewHandlers(authService, rooms, engine, solo, subtopics, wsManager, st, logger)

	server := &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	server.setupRoutes(authService)
	return server
}

func (s *Server) setupRoutes(authService *auth.Service) {
	// Global middleware
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(CORSMiddleware)

	// Rate limiters for auth endpoints
	loginLimiter := NewRateLimiter(PerMinute(5), 5)
	registerLimiter := NewRateLimiter(PerMinute(3), 3)

	// Auth routes (public) with rate limiting
	s.router.Handle("/api/auth/register", registerLimiter.Middleware(http.HandlerFunc(s.handlers.Register))).Methods("POST")
	s.router.Handle("/api/auth/login", loginLimiter.Middleware(http.HandlerFunc(s.handlers.Login))).Methods("POST")

	// Guests join rooms without an account
	s.router.HandleFunc("/api/rooms/join", s.handlers.JoinRoom).Methods("POST")

	// Host-only routes
	protected := s.router.PathPrefix("/api").Subrouter()
	protected.Use(AuthMiddleware(authService))

	protected.HandleFunc("/rooms", s.handlers.CreateRoom).Methods("POST")
	protected.HandleFunc("/games", s.handlers.CreateGame).Methods("POST")
	protected.HandleFunc("/games/start", s.handlers.StartGame).Methods("POST")
	protected.HandleFunc("/games/end", s.handlers.EndGame).Methods("POST")
	protected.HandleFunc("/topics", s.handlers.Subtopics).Methods("POST")
	protected.HandleFunc("/solo", s.handlers.StartSoloGame).Methods("POST")
	protected.HandleFunc("/solo/questions", s.handlers.SoloQuestions).Methods("GET")
	protected.HandleFunc("/solo/answers", s.handlers.SoloAnswer).Methods("POST")

	// WebSocket route. Public so guests can connect; the host authenticates
	// with a token query parameter since browsers cannot set headers on
	// websocket upgrades.
	s.router.HandleFunc("/ws/rooms/{roomCode}", s.handlers.HandleWebSocket)

	// JSON 404 for unmatched API routes
	s.router.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

func (s *Server) GetHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
