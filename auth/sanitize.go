package auth

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// SanitizeUsername strips HTML and surrounding whitespace. Display names end
// up broadcast to every client in a room, so this runs before any persistence.
func SanitizeUsername(username string) string {
	return strings.TrimSpace(policy.Sanitize(username))
}

// SanitizeTopic cleans free-form topic text before it is sent to the question
// generation service and stored with the game.
func SanitizeTopic(topic string) string {
	return strings.TrimSpace(policy.Sanitize(topic))
}
