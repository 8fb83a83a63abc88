package game

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
	StatusAborted    = "aborted"
)

// Player is the roster projection broadcast to a room.
type Player struct {
	Username    string `json:"username"`
	AvatarStyle string `json:"avatarStyle"`
	AvatarSeed  string `json:"avatarSeed"`
	Status      string `json:"status"`
	IsHost      bool   `json:"isHost"`
}

// NextQuestion is what the room sees when the host advances the game. The
// correct answer never leaves the server here.
type NextQuestion struct {
	QuestionID     int64    `json:"questionId"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Timer          int      `json:"timer"`
	IsLastQuestion bool     `json:"is_last_question"`
}

// AnswerResult goes back to the submitter only.
type AnswerResult struct {
	SubmittedAnswer string `json:"submittedAnswer"`
	IsCorrect       bool   `json:"isCorrect"`
	CorrectAnswer   string `json:"correctAnswer"`
	Points          int    `json:"-"`
	Skipped         bool   `json:"-"`
}

// LeaderboardRow is one identity's tallies within a game.
type LeaderboardRow struct {
	Username         string `json:"username"`
	Score            int    `json:"score"`
	CorrectAnswers   int    `json:"correct_answers"`
	WrongAnswers     int    `json:"wrong_answers"`
	SkippedQuestions int    `json:"skipped_questions"`
}

// RoomInfo is returned by room creation/join.
type RoomInfo struct {
	RoomCode string `json:"roomCode"`
	HostName string `json:"hostName"`
	Existing bool   `json:"-"`
}

type JoinInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomCode string `json:"roomCode"`
}
