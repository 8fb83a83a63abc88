package game

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomEnded            = errors.New("room has already been closed")
	ErrNoCurrentGame        = errors.New("no active games found")
	ErrGameOver             = errors.New("no more questions")
	ErrGameStarted          = errors.New("game has already started")
	ErrQuestionNotFound     = errors.New("invalid question id")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrUsernameTaken        = errors.New("username is already taken")
	ErrDuplicateAnswer      = errors.New("question already answered")
	ErrSelfKick             = errors.New("you cannot kick yourself")
	ErrInvalidTopic         = errors.New("topic is required")
	ErrInvalidQuestionCount = errors.New("question count must be positive")
	ErrNotAllReady          = errors.New("all participants must be ready to start the game")
	ErrSoloGameActive       = errors.New("you can only have a single game running")
	ErrNoSoloGame           = errors.New("no single-player game in progress")
	ErrNoMoreQuestions      = errors.New("no more questions to answer")
)
