package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFrame(t *testing.T) {
	data, err := marshalFrame(EventPlayerDisconnected, usernamePayload{Username: "alice"})
	require.NoError(t, err)

	var got map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "player_disconnected", got["message"]["type"])
	assert.Equal(t, map[string]interface{}{"username": "alice"}, got["message"]["payload"])
}

func TestMarshalFrame_NilPayload(t *testing.T) {
	data, err := marshalFrame(EventHostEndedGame, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":{"type":"host_ended_game","payload":{}}}`, string(data))
}

func TestMarshalError(t *testing.T) {
	data, err := marshalError("Invalid token.")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":{"error":"Invalid token."}}`, string(data))
}

func TestEnvelope_Decoding(t *testing.T) {
	raw := `{"type":"send_question_answered","payload":{"questionId":7,"submittedAnswer":"a","timestamp":1756600000000}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, EventQuestionAnswered, env.Type)

	var payload questionAnsweredPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, int64(7), payload.QuestionID)
	assert.Equal(t, "a", payload.SubmittedAnswer)
	assert.Equal(t, int64(1756600000000), payload.Timestamp)
}
