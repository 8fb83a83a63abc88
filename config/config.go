package config

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"os"
)

type Config struct {
	Env                string
	ServerPort         string
	DBPath             string
	JWTSecret          string
	QuestionServiceURL string
	SubtopicServiceURL string
}

func Load() *Config {
	return &Config{
		Env:                getenv("QUIZIO_ENV", "production"),
		ServerPort:         getenv("QUIZIO_PORT", ":8080"),
		DBPath:             getenv("QUIZIO_DB_PATH", "./quizio.db"),
		JWTSecret:          jwtSecret(),
		QuestionServiceURL: getenv("QUIZIO_QUESTION_SERVICE_URL", "http://localhost:8090/generate"),
		SubtopicServiceURL: getenv("QUIZIO_SUBTOPIC_SERVICE_URL", "http://localhost:8090/subtopics"),
	}
}

func jwtSecret() string {
	if v := os.Getenv("QUIZIO_JWT_SECRET"); v != "" {
		return v
	}
	return generateSecret()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// generateSecret is the fallback when QUIZIO_JWT_SECRET is unset. Tokens issued
// before a restart will not verify after it.
func generateSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate JWT secret:", err)
	}
	return base64.StdEncoding.EncodeToString(bytes)
}
