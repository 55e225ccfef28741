package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

func newTestConn(id string) *Conn {
	return newConn(id, nil)
}

func registerTestConn(h *Hub, id string) *Conn {
	conn := newTestConn(id)
	h.conns.Set(id, conn)
	return conn
}

func drainOne(t *testing.T, conn *Conn) protocol.Envelope {
	t.Helper()
	select {
	case raw := <-conn.send:
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatal(err)
		}
		return env
	default:
		t.Fatal("expected a queued frame")
		return protocol.Envelope{}
	}
}

func Test_RoomMembership(t *testing.T) {
	h := NewHub()
	a := registerTestConn(h, "a")
	b := registerTestConn(h, "b")

	h.JoinRoom(SessionRoom("s1"), a)
	h.JoinRoom(SessionRoom("s1"), b)
	assert.Equal(t, 2, h.RoomSize(SessionRoom("s1")))

	h.LeaveRoom(SessionRoom("s1"), a)
	assert.Equal(t, 1, h.RoomSize(SessionRoom("s1")))

	h.LeaveRoom(SessionRoom("s1"), b)
	// Empty rooms disappear entirely.
	assert.Equal(t, 0, h.RoomSize(SessionRoom("s1")))
	assert.Nil(t, h.MembersOf(SessionRoom("s1")))
}

func Test_BroadcastExceptSkipsSender(t *testing.T) {
	h := NewHub()
	sender := registerTestConn(h, "sender")
	other := registerTestConn(h, "other")
	h.JoinRoom(SessionRoom("s1"), sender)
	h.JoinRoom(SessionRoom("s1"), other)

	sent := h.BroadcastExcept(SessionRoom("s1"), sender.ID(), protocol.EventNewMessage, map[string]string{"content": "hi"})
	assert.Equal(t, 1, sent)

	env := drainOne(t, other)
	assert.Equal(t, protocol.EventNewMessage, env.Event)

	select {
	case <-sender.send:
		t.Fatal("sender should not receive its own message")
	default:
	}
}

func Test_SendToUserReportsLiveDelivery(t *testing.T) {
	h := NewHub()
	conn := registerTestConn(h, "c1")
	h.JoinRoom(UserRoom("u1"), conn)

	assert.True(t, h.SendToUser("u1", protocol.EventSessionAccepted, nil))
	assert.False(t, h.SendToUser("nobody", protocol.EventSessionAccepted, nil))
}

func Test_UnregisterLeavesRoomsAndRunsTeardowns(t *testing.T) {
	h := NewHub()
	conn := registerTestConn(h, "c1")
	h.JoinRoom(RoomAgents, conn)
	h.JoinRoom(AgentRoom("a1"), conn)

	ran := 0
	conn.AddTeardown(func() { ran++ })

	h.Unregister(conn)

	assert.Equal(t, 0, h.RoomSize(RoomAgents))
	assert.Equal(t, 0, h.RoomSize(AgentRoom("a1")))
	assert.Equal(t, 1, ran)
	_, exists := h.GetConn("c1")
	assert.False(t, exists)

	select {
	case <-conn.Closed():
	default:
		t.Fatal("connection should be closed after unregister")
	}
}

func Test_BeginTeardownRunsOnce(t *testing.T) {
	conn := newTestConn("c1")
	assert.True(t, conn.BeginTeardown())
	assert.False(t, conn.BeginTeardown())
}

func Test_SendRawAfterClose(t *testing.T) {
	conn := newTestConn("c1")
	conn.Close()
	assert.ErrorIs(t, conn.SendRaw([]byte("{}")), ErrConnClosed)
}

func Test_SendRawFullBuffer(t *testing.T) {
	conn := newTestConn("c1")
	for i := 0; i < sendBufferSize; i++ {
		assert.NoError(t, conn.SendRaw([]byte("{}")))
	}
	assert.ErrorIs(t, conn.SendRaw([]byte("{}")), ErrSendBufferFull)
}

func Test_WaitingPushDedup(t *testing.T) {
	conn := newTestConn("c1")

	assert.True(t, conn.MarkWaitingPushed("s1"))
	assert.False(t, conn.MarkWaitingPushed("s1"))

	// A requeued session can be announced again once cleared.
	conn.ClearWaitingPushed("s1")
	assert.True(t, conn.MarkWaitingPushed("s1"))
}

func Test_IdentityBinding(t *testing.T) {
	conn := newTestConn("c1")

	_, ok := conn.Identity()
	assert.False(t, ok)

	conn.SetIdentity(Identity{UserID: "u1", Username: "neo", Role: types.ROLE_USER})
	identity, ok := conn.Identity()
	assert.True(t, ok)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, types.ROLE_USER, identity.Role)
}

func Test_OnlineAgentConns(t *testing.T) {
	h := NewHub()
	a := registerTestConn(h, "a")
	b := registerTestConn(h, "b")
	registerTestConn(h, "user")

	h.JoinRoom(RoomAgents, a)
	h.JoinRoom(RoomAgents, b)

	assert.Len(t, h.OnlineAgentConns(), 2)
	assert.False(t, h.AgentOnline("a1"))

	h.JoinRoom(AgentRoom("a1"), a)
	assert.True(t, h.AgentOnline("a1"))
}
