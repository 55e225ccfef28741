package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

func Test_EnvelopeRoundTrip(t *testing.T) {
	raw, err := protocol.NewEnvelope(protocol.EventSendMessage, protocol.SendMessageRequest{
		SessionID: "s1",
		Content:   "hello",
	})
	assert.NoError(t, err)

	env, err := protocol.ParseEnvelope(raw)
	assert.NoError(t, err)
	assert.Equal(t, protocol.EventSendMessage, env.Event)

	var req protocol.SendMessageRequest
	assert.NoError(t, env.Bind(&req))
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "hello", req.Content)
}

func Test_ParseEnvelopeRejectsMissingEvent(t *testing.T) {
	_, err := protocol.ParseEnvelope([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = protocol.ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func Test_BindRejectsEmptyPayload(t *testing.T) {
	env, err := protocol.ParseEnvelope([]byte(`{"event":"end_session"}`))
	assert.NoError(t, err)

	var req protocol.EndSessionRequest
	assert.Error(t, env.Bind(&req))
}

func Test_AgentFieldsUseWireNames(t *testing.T) {
	raw, err := json.Marshal(protocol.SessionAcceptedPayload{
		SessionID: "s1",
		AgentID:   "a1",
		AgentName: "alice",
	})
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "a1", decoded["customer_service_id"])
	assert.Equal(t, "alice", decoded["customer_service_name"])
}
