package v1_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	v1 "github.com/chatdesk/chatdesk/app/logic/v1"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

func agentIdentity(agent types.CustomerService) hub.Identity {
	return hub.Identity{UserID: agent.ID, Username: agent.Username, Role: types.ROLE_AGENT}
}

func userIdentity(user types.User) hub.Identity {
	return hub.Identity{UserID: user.ID, Username: user.Username, Role: types.ROLE_USER}
}

func Test_StartChatCreatesWaitingSession(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	conn := newHubConn(t, c, userIdentity(user))

	res, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(types.CHAT_SESSION_STATUS_WAITING), res.Status)

	session, err := c.Store().ChatSessionStore().GetBySessionID(ctx, res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotNil(t, session)
	assert.Equal(t, user.ID, session.UserID)
	assert.False(t, session.Assigned())
}

func Test_StartChatReusesUnfinishedSession(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	conn := newHubConn(t, c, userIdentity(user))

	first, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, first.SessionID, second.SessionID)
}

func Test_TargetedStartChatIsDeterministic(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	conn := newHubConn(t, c, userIdentity(user))

	res, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{AgentID: agent.ID})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, user.ID+"_"+agent.ID, res.SessionID)
	assert.Equal(t, agent.ID, res.AgentID)

	again, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{AgentID: agent.ID})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, res.SessionID, again.SessionID)
}

func Test_AcceptActivatesSessionAndCountsOnce(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	agentConn := newHubConn(t, c, agentIdentity(agent))

	res, err := logic.Accept(agentConn, agent.ID, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(types.CHAT_SESSION_STATUS_ACTIVE), res.Status)

	stored, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, stored.CurrentChats)

	// Accepting a session the agent already holds must not count again.
	if _, err = logic.Accept(agentConn, agent.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}
	stored, err = c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, stored.CurrentChats)
}

func Test_AcceptRespectsCapacity(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	agent := createTestAgent(t, c, 1)
	agentConn := newHubConn(t, c, agentIdentity(agent))

	first := createWaitingSession(t, c, createTestUser(t, c).ID, agent.ID)
	second := createWaitingSession(t, c, createTestUser(t, c).ID, agent.ID)

	if _, err := logic.Accept(agentConn, agent.ID, first.SessionID); err != nil {
		t.Fatal(err)
	}

	_, err := logic.Accept(agentConn, agent.ID, second.SessionID)
	assert.Error(t, err)

	stored, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, stored.CurrentChats)

	// The losing accept must not leave the session active.
	remaining, err := c.Store().ChatSessionStore().GetBySessionID(ctx, second.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, types.CHAT_SESSION_STATUS_ACTIVE, remaining.Status)
}

func Test_EndActiveSessionReleasesCapacity(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	agentConn := newHubConn(t, c, agentIdentity(agent))

	if _, err := logic.Accept(agentConn, agent.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}

	res, err := logic.End(types.ROLE_AGENT, agent.ID, session.SessionID, "resolved")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(types.ROLE_AGENT), res.EndedBy.Type)

	stored, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, stored.CurrentChats)

	ended, err := c.Store().ChatSessionStore().GetBySessionID(ctx, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.CHAT_SESSION_STATUS_ENDED, ended.Status)
	assert.Equal(t, "resolved", ended.Notes)
}

func Test_EndWaitingSessionKeepsCounter(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	if _, err := logic.End(types.ROLE_USER, user.ID, session.SessionID, ""); err != nil {
		t.Fatal(err)
	}

	stored, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, stored.CurrentChats)
}

func Test_EndRequiresOwnership(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	stranger := createTestUser(t, c)
	_, err := logic.End(types.ROLE_USER, stranger.ID, session.SessionID, "")
	assert.Error(t, err)
}

func Test_CancelWaiting(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	res, err := logic.CancelWaiting(user.ID, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, session.SessionID, res.SessionID)

	gone, err := c.Store().ChatSessionStore().GetBySessionID(ctx, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Nil(t, gone)
}

func Test_CancelWaitingRejectsActiveSession(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	agentConn := newHubConn(t, c, agentIdentity(agent))

	if _, err := logic.Accept(agentConn, agent.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}

	_, err := logic.CancelWaiting(user.ID, session.SessionID)
	assert.Error(t, err)
}

func Test_RejectDropsWaitingSession(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	res, err := logic.Reject(agent.ID, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, session.SessionID, res.SessionID)

	gone, err := c.Store().ChatSessionStore().GetBySessionID(ctx, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Nil(t, gone)
}

func Test_RejectActiveSessionFails(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	agentConn := newHubConn(t, c, agentIdentity(agent))

	if _, err := logic.Accept(agentConn, agent.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}

	// An active session holds a capacity slot, rejecting it would leak the
	// counter. It has to go through End.
	_, err := logic.Reject(agent.ID, session.SessionID)
	assert.Error(t, err)

	stored, err := c.Store().ChatSessionStore().GetBySessionID(ctx, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotNil(t, stored)
	assert.Equal(t, types.CHAT_SESSION_STATUS_ACTIVE, stored.Status)

	holder, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, holder.CurrentChats)
}

func Test_RejectVisitorSessionNotifiesVisitor(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	agent := createTestAgent(t, c, 5)
	visitorID := fmt.Sprintf("vis-%d", time.Now().UnixNano())
	session := types.ChatSession{
		SessionID:   "visitor_" + visitorID,
		VisitorID:   visitorID,
		VisitorName: "Guest",
		AgentID:     agent.ID,
	}
	if err := c.Store().ChatSessionStore().Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	if _, err := logic.Reject(agent.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_USER, visitorID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, rows, 1)
	assert.Equal(t, protocol.EventSessionRejected, rows[0].EventType)
}

func Test_EndSessionTransitionsOnce(t *testing.T) {
	c := setupCore(t)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)

	ended, err := c.Store().ChatSessionStore().EndSession(ctx, session.SessionID, "")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, ended)

	// The second end loses the transition, so its caller must not release a
	// capacity slot again.
	ended, err = c.Store().ChatSessionStore().EndSession(ctx, session.SessionID, "")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ended)
}

func Test_EndTwiceReleasesCapacityOnce(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	agent := createTestAgent(t, c, 5)
	agentConn := newHubConn(t, c, agentIdentity(agent))
	first := createWaitingSession(t, c, createTestUser(t, c).ID, agent.ID)
	second := createWaitingSession(t, c, createTestUser(t, c).ID, agent.ID)

	if _, err := logic.Accept(agentConn, agent.ID, first.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := logic.Accept(agentConn, agent.ID, second.SessionID); err != nil {
		t.Fatal(err)
	}

	if _, err := logic.End(types.ROLE_AGENT, agent.ID, first.SessionID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := logic.End(types.ROLE_AGENT, agent.ID, first.SessionID, ""); err != nil {
		t.Fatal(err)
	}

	stored, err := c.Store().CustomerServiceStore().Get(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, stored.CurrentChats)
}

func Test_TransferEndedSessionFails(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	from := createTestAgent(t, c, 5)
	to := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, from.ID)
	fromConn := newHubConn(t, c, agentIdentity(from))

	if _, err := logic.Accept(fromConn, from.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := logic.End(types.ROLE_AGENT, from.ID, session.SessionID, ""); err != nil {
		t.Fatal(err)
	}

	_, err := logic.Transfer(from.ID, protocol.TransferSessionRequest{
		SessionID:     session.SessionID,
		TargetAgentID: to.ID,
	})
	assert.Error(t, err)

	toStored, err := c.Store().CustomerServiceStore().Get(ctx, to.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, toStored.CurrentChats)
}

func Test_ResumedWaitingSessionReachesOfflineAgent(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	conn := newHubConn(t, c, userIdentity(user))

	// The assigned agent has no live connection, the queue notification must
	// land in the outbox instead of vanishing.
	res, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, session.SessionID, res.SessionID)

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_AGENT, agent.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, rows, 1)
	assert.Equal(t, protocol.EventNewWaitingUser, rows[0].EventType)
}

func Test_RequeuedSessionReachesOfflineAgent(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := types.ChatSession{
		SessionID: fmt.Sprintf("%s_%s", user.ID, agent.ID),
		UserID:    user.ID,
		AgentID:   agent.ID,
		Status:    types.CHAT_SESSION_STATUS_ENDED,
		EndedAt:   time.Now().Unix(),
	}
	if err := c.Store().ChatSessionStore().Create(ctx, session); err != nil {
		t.Fatal(err)
	}
	conn := newHubConn(t, c, userIdentity(user))

	res, err := logic.StartChat(conn, user.ID, protocol.StartChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, session.SessionID, res.SessionID)
	assert.Equal(t, string(types.CHAT_SESSION_STATUS_WAITING), res.Status)

	rows, err := c.Store().PendingNotificationStore().ListUndelivered(ctx, types.NOTIFY_TARGET_AGENT, agent.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, rows, 1)
	assert.Equal(t, protocol.EventNewWaitingUser, rows[0].EventType)
}

func Test_TransferMovesCapacity(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	from := createTestAgent(t, c, 5)
	to := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, from.ID)
	fromConn := newHubConn(t, c, agentIdentity(from))

	if _, err := logic.Accept(fromConn, from.ID, session.SessionID); err != nil {
		t.Fatal(err)
	}

	res, err := logic.Transfer(from.ID, protocol.TransferSessionRequest{
		SessionID:     session.SessionID,
		TargetAgentID: to.ID,
		Reason:        "specialist needed",
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, to.ID, res.ToAgent)

	fromStored, err := c.Store().CustomerServiceStore().Get(ctx, from.ID)
	if err != nil {
		t.Fatal(err)
	}
	toStored, err := c.Store().CustomerServiceStore().Get(ctx, to.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, fromStored.CurrentChats)
	assert.Equal(t, 1, toStored.CurrentChats)

	moved, err := c.Store().ChatSessionStore().GetBySessionID(ctx, session.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.CHAT_SESSION_STATUS_TRANSFERRED, moved.Status)
	assert.Equal(t, to.ID, moved.AgentID)
	assert.Equal(t, "specialist needed", moved.Notes)
}

func Test_TransferRejectsNonOwner(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	owner := createTestAgent(t, c, 5)
	other := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, owner.ID)

	_, err := logic.Transfer(other.ID, protocol.TransferSessionRequest{
		SessionID:     session.SessionID,
		TargetAgentID: other.ID,
	})
	assert.Error(t, err)
}

func Test_SendMessageAndHistory(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	userConn := newHubConn(t, c, userIdentity(user))

	for _, content := range []string{"first", "second", "third"} {
		identity, _ := userConn.Identity()
		if _, err := logic.SendMessage(userConn, identity, protocol.SendMessageRequest{
			SessionID: session.SessionID,
			Content:   content,
		}); err != nil {
			t.Fatal(err)
		}
	}

	history, err := logic.GetHistory(protocol.GetHistoryRequest{SessionID: session.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, history.Messages, 3)
	// Oldest first on the wire.
	assert.Equal(t, "first", history.Messages[0].Content)
	assert.Equal(t, "third", history.Messages[2].Content)
	assert.False(t, history.HasMore)
}

func Test_SendMessageOnEndedSessionAllowed(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	user := createTestUser(t, c)
	agent := createTestAgent(t, c, 5)
	session := createWaitingSession(t, c, user.ID, agent.ID)
	userConn := newHubConn(t, c, userIdentity(user))

	if _, err := logic.End(types.ROLE_USER, user.ID, session.SessionID, ""); err != nil {
		t.Fatal(err)
	}

	identity, _ := userConn.Identity()
	_, err := logic.SendMessage(userConn, identity, protocol.SendMessageRequest{
		SessionID: session.SessionID,
		Content:   "one last thing",
	})
	assert.NoError(t, err)
}

func Test_UpdateStatusValidation(t *testing.T) {
	c := setupCore(t)
	logic := v1.NewChatLogic(ctx, c)

	agent := createTestAgent(t, c, 5)

	res, err := logic.UpdateStatus(agent.ID, string(types.AGENT_STATUS_BUSY))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(types.AGENT_STATUS_BUSY), res.Status)

	_, err = logic.UpdateStatus(agent.ID, "sleeping")
	assert.Error(t, err)
}
