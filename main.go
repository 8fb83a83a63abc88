package main

import (
	"context"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quizio/auth"
	"quizio/config"
	"quizio/game"
	httpserver "quizio/http"
	"quizio/jobs"
	"quizio/questions"
	"quizio/store"
	"quizio/ws"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting quizio server",
		zap.String("port", cfg.ServerPort),
		zap.String("db", cfg.DBPath),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret)
	authService := auth.NewService(db, tokens)
	generator := questions.NewClient(cfg.QuestionServiceURL, cfg.SubtopicServiceURL)
	engine := game.NewEngine(db, generator)
	solo := game.NewSolo(db, generator)
	rooms := game.NewRooms(db)
	wsManager := ws.NewManager(engine, rooms, db, tokens, logger)

	cleaner := jobs.NewCleaner(db, logger)
	if err := cleaner.Start(); err != nil {
		logger.Fatal("failed to start cleanup jobs", zap.Error(err))
	}
	defer cleaner.Stop()

	server := httpserver.NewServer(authService, rooms, engine, solo, generator, wsManager, db, logger)
	srv := server.GetHTTPServer(cfg.ServerPort)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
