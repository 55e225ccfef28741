package v1

import (
	"context"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/samber/lo"

	"github.com/chatdesk/chatdesk/app/core"
	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

// sessionLocks serializes state transitions of the same session within this
// process. The conditional UPDATEs in the store are the real arbiter across
// processes, the lock just keeps local callers ordered. Entries are
// reference-counted and dropped with the last holder so the map does not
// accumulate one mutex per session id ever seen.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

var sessionLocks = cmap.New[*sessionLock]()

func lockSession(sessionID string) func() {
	lock := sessionLocks.Upsert(sessionID, nil, func(exists bool, current, _ *sessionLock) *sessionLock {
		if !exists {
			current = &sessionLock{}
		}
		current.refs++
		return current
	})
	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		sessionLocks.RemoveCb(sessionID, func(_ string, current *sessionLock, exists bool) bool {
			if !exists {
				return false
			}
			current.refs--
			return current.refs == 0
		})
	}
}

type ChatLogic struct {
	ctx      context.Context
	core     *core.Core
	delivery *DeliveryLogic
}

func NewChatLogic(ctx context.Context, core *core.Core) *ChatLogic {
	return &ChatLogic{
		ctx:      ctx,
		core:     core,
		delivery: NewDeliveryLogic(ctx, core),
	}
}

// StartChat opens or resumes a session for the user. With a target agent the
// session id is deterministic per user/agent pair so repeated starts converge
// on the same row. Without a target the user's latest usable session is
// reused before a fresh one is created.
func (l *ChatLogic) StartChat(conn *hub.Conn, userID string, req protocol.StartChatRequest) (*protocol.SessionStartedPayload, error) {
	if req.AgentID != "" {
		return l.startTargeted(conn, userID, req.AgentID)
	}
	return l.startUntargeted(conn, userID)
}

func (l *ChatLogic) startTargeted(conn *hub.Conn, userID, agentID string) (*protocol.SessionStartedPayload, error) {
	sessionID := fmt.Sprintf("%s_%s", userID, agentID)

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, sessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.startTargeted.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}

	status := types.CHAT_SESSION_STATUS_WAITING
	switch {
	case session == nil:
		if err = l.core.Store().ChatSessionStore().Create(l.ctx, types.ChatSession{
			SessionID: sessionID,
			UserID:    userID,
			AgentID:   agentID,
		}); err != nil {
			return nil, errors.New("ChatLogic.startTargeted.ChatSessionStore.Create", i18n.ERROR_INTERNAL, err)
		}
	case session.Status == types.CHAT_SESSION_STATUS_ACTIVE:
		status = types.CHAT_SESSION_STATUS_ACTIVE
		if err = l.core.Store().ChatSessionStore().Touch(l.ctx, sessionID); err != nil {
			return nil, errors.New("ChatLogic.startTargeted.ChatSessionStore.Touch", i18n.ERROR_INTERNAL, err)
		}
	case session.Status == types.CHAT_SESSION_STATUS_WAITING:
		// Already queued, nothing to change.
	default:
		// Ended or transferred away. Requeue the pair session with this
		// agent bound again.
		if err = l.core.Store().ChatSessionStore().ReopenWaiting(l.ctx, sessionID, agentID); err != nil {
			return nil, errors.New("ChatLogic.startTargeted.ChatSessionStore.ReopenWaiting", i18n.ERROR_INTERNAL, err)
		}
	}

	l.core.Hub().JoinRoom(hub.SessionRoom(sessionID), conn)

	waiting := l.buildWaitingPayload(types.ChatSession{
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		Priority:  types.SESSION_PRIORITY_NORMAL,
		CreatedAt: time.Now().Unix(),
	})
	if status == types.CHAT_SESSION_STATUS_WAITING {
		l.delivery.NotifyAgent(agentID, protocol.EventNewWaitingUser, waiting)
	} else {
		// Session is already live again, pull the agent's connections into
		// the room instead of queueing.
		l.core.Hub().Broadcast(hub.AgentRoom(agentID), protocol.EventNewSession, waiting)
		for _, agentConn := range l.core.Hub().MembersOf(hub.AgentRoom(agentID)) {
			l.core.Hub().JoinRoom(hub.SessionRoom(sessionID), agentConn)
		}
	}

	return &protocol.SessionStartedPayload{
		SessionID: sessionID,
		Status:    string(status),
		UserID:    userID,
		AgentID:   agentID,
		Message:   "session ready",
	}, nil
}

func (l *ChatLogic) startUntargeted(conn *hub.Conn, userID string) (*protocol.SessionStartedPayload, error) {
	latest, err := l.core.Store().ChatSessionStore().GetLatestUnfinishedByUser(l.ctx, userID)
	if err != nil {
		return nil, errors.New("ChatLogic.startUntargeted.ChatSessionStore.GetLatestUnfinishedByUser", i18n.ERROR_INTERNAL, err)
	}
	if latest != nil {
		l.core.Hub().JoinRoom(hub.SessionRoom(latest.SessionID), conn)

		if latest.Status == types.CHAT_SESSION_STATUS_WAITING {
			waiting := l.buildWaitingPayload(*latest)
			if latest.Assigned() {
				l.delivery.NotifyAgent(latest.AgentID, protocol.EventNewWaitingUser, waiting)
			} else {
				l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventNewWaitingUser, waiting)
			}
		}

		return &protocol.SessionStartedPayload{
			SessionID: latest.SessionID,
			Status:    string(latest.Status),
			UserID:    userID,
			AgentID:   latest.AgentID,
			Message:   "session resumed",
		}, nil
	}

	// The user chatted with an agent before, requeue with the same agent so
	// the conversation keeps its context.
	previous, err := l.core.Store().ChatSessionStore().GetLatestEndedWithAgent(l.ctx, userID)
	if err != nil {
		return nil, errors.New("ChatLogic.startUntargeted.ChatSessionStore.GetLatestEndedWithAgent", i18n.ERROR_INTERNAL, err)
	}
	if previous != nil {
		if err = l.core.Store().ChatSessionStore().ReopenWaiting(l.ctx, previous.SessionID, ""); err != nil {
			return nil, errors.New("ChatLogic.startUntargeted.ChatSessionStore.ReopenWaiting", i18n.ERROR_INTERNAL, err)
		}
		l.core.Hub().JoinRoom(hub.SessionRoom(previous.SessionID), conn)

		previous.Status = types.CHAT_SESSION_STATUS_WAITING
		l.delivery.NotifyAgent(previous.AgentID, protocol.EventNewWaitingUser, l.buildWaitingPayload(*previous))

		return &protocol.SessionStartedPayload{
			SessionID: previous.SessionID,
			Status:    string(types.CHAT_SESSION_STATUS_WAITING),
			UserID:    userID,
			AgentID:   previous.AgentID,
			Message:   "session requeued",
		}, nil
	}

	session := types.ChatSession{
		SessionID: fmt.Sprintf("user_%s_%d", userID, time.Now().Unix()),
		UserID:    userID,
		CreatedAt: time.Now().Unix(),
	}
	if err = l.core.Store().ChatSessionStore().Create(l.ctx, session); err != nil {
		return nil, errors.New("ChatLogic.startUntargeted.ChatSessionStore.Create", i18n.ERROR_INTERNAL, err)
	}
	l.core.Hub().JoinRoom(hub.SessionRoom(session.SessionID), conn)

	session.Priority = types.SESSION_PRIORITY_NORMAL
	l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventNewWaitingUser, l.buildWaitingPayload(session))

	return &protocol.SessionStartedPayload{
		SessionID: session.SessionID,
		Status:    string(types.CHAT_SESSION_STATUS_WAITING),
		UserID:    userID,
		Message:   "session created",
	}, nil
}

// Accept claims the session for the agent. The claim itself is a conditional
// UPDATE, then the row is read back inside the same transaction: only a
// verified active row bound to this agent counts as a win. Accepting a session
// the agent already holds active is a no-op for the capacity counter.
func (l *ChatLogic) Accept(conn *hub.Conn, agentID, sessionID string) (*protocol.SessionAcceptedPayload, error) {
	unlock := lockSession(sessionID)
	defer unlock()

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, sessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.Accept.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		return nil, errors.New("ChatLogic.Accept.ChatSessionStore.GetBySessionID", i18n.ERROR_SESSION_NOT_FOUND, nil).Code(404)
	}

	agent, err := l.core.Store().CustomerServiceStore().Get(l.ctx, agentID)
	if err != nil {
		return nil, errors.New("ChatLogic.Accept.CustomerServiceStore.Get", i18n.ERROR_INTERNAL, err)
	}
	if agent == nil {
		return nil, errors.New("ChatLogic.Accept.CustomerServiceStore.Get", i18n.ERROR_AGENT_NOT_FOUND, nil).Code(404)
	}

	alreadyHeld := session.AgentID == agentID && session.Status == types.CHAT_SESSION_STATUS_ACTIVE
	if !alreadyHeld && agent.AtCapacity() {
		return nil, errors.New("ChatLogic.Accept.CapacityCheck", i18n.ERROR_CAPACITY_EXCEEDED, nil).Code(409)
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().ChatSessionStore().ClaimActive(ctx, sessionID, agentID); err != nil {
			return errors.New("ChatLogic.Accept.ChatSessionStore.ClaimActive", i18n.ERROR_INTERNAL, err)
		}

		claimed, err := l.core.Store().ChatSessionStore().GetBySessionID(ctx, sessionID)
		if err != nil {
			return errors.New("ChatLogic.Accept.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
		}
		if claimed == nil || claimed.Status != types.CHAT_SESSION_STATUS_ACTIVE || claimed.AgentID != agentID {
			return errors.New("ChatLogic.Accept.ClaimVerify", i18n.ERROR_INCONSISTENT, nil).Code(409)
		}
		session = claimed

		if !alreadyHeld {
			ok, err := l.core.Store().CustomerServiceStore().IncrCurrentChats(ctx, agentID)
			if err != nil {
				return errors.New("ChatLogic.Accept.CustomerServiceStore.IncrCurrentChats", i18n.ERROR_INTERNAL, err)
			}
			if !ok {
				return errors.New("ChatLogic.Accept.CustomerServiceStore.IncrCurrentChats", i18n.ERROR_CAPACITY_EXCEEDED, nil).Code(409)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sessionRoom := hub.SessionRoom(sessionID)
	l.core.Hub().JoinRoom(sessionRoom, conn)
	for _, userConn := range l.core.Hub().MembersOf(hub.UserRoom(session.PartyID())) {
		l.core.Hub().JoinRoom(sessionRoom, userConn)
	}

	joined := types.ChatMessage{
		ID:          utils.GenUniqIDStr(),
		SessionID:   sessionID,
		SenderType:  types.SENDER_TYPE_SYSTEM,
		SenderName:  "system",
		MessageType: types.MESSAGE_TYPE_SYSTEM,
		Content:     fmt.Sprintf("%s joined the conversation", agent.Username),
		CreatedAt:   time.Now().Unix(),
	}
	if err = l.core.Store().ChatMessageStore().Create(l.ctx, joined); err != nil {
		return nil, errors.New("ChatLogic.Accept.ChatMessageStore.Create", i18n.ERROR_INTERNAL, err)
	}
	l.core.Hub().Broadcast(sessionRoom, protocol.EventNewMessage, messagePayload(joined))

	accepted := protocol.SessionAcceptedPayload{
		SessionID: sessionID,
		UserID:    session.PartyID(),
		AgentID:   agentID,
		AgentName: agent.Username,
		Username:  session.PartyID(),
		Status:    string(types.CHAT_SESSION_STATUS_ACTIVE),
		Message:   "session accepted",
	}
	if session.VisitorName != "" {
		accepted.Username = session.VisitorName
		accepted.Email = session.VisitorEmail
	}
	if session.UserID != "" {
		if user, err := l.core.Store().UserStore().GetUser(l.ctx, session.UserID); err == nil && user != nil {
			accepted.Username = user.Username
			accepted.Email = user.Email
			accepted.Avatar = user.Avatar
		}
	}

	l.core.Hub().Broadcast(sessionRoom, protocol.EventSessionAccepted, accepted)
	l.delivery.NotifyUser(session.PartyID(), protocol.EventSessionAccepted, accepted)

	taken := protocol.SessionTakenPayload{SessionID: sessionID, AgentID: agentID}
	for _, agentConn := range l.core.Hub().OnlineAgentConns() {
		agentConn.ClearWaitingPushed(sessionID)
		if identity, ok := agentConn.Identity(); ok && identity.UserID == agentID {
			continue
		}
		_ = agentConn.SendEvent(protocol.EventSessionTaken, taken)
	}

	return &accepted, nil
}

// Reject drops a waiting session from the queue entirely. Only a waiting
// session can be rejected, an active one holds a capacity slot and has to go
// through End so the counter comes back.
func (l *ChatLogic) Reject(agentID, sessionID string) (*protocol.SessionRejectedPayload, error) {
	unlock := lockSession(sessionID)
	defer unlock()

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, sessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.Reject.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		return nil, errors.New("ChatLogic.Reject.ChatSessionStore.GetBySessionID", i18n.ERROR_SESSION_NOT_FOUND, nil).Code(404)
	}
	if session.Status != types.CHAT_SESSION_STATUS_WAITING {
		return nil, errors.New("ChatLogic.Reject.StatusCheck", i18n.ERROR_INVALID_STATE, nil).Code(400)
	}

	if err = l.core.Store().ChatSessionStore().Delete(l.ctx, sessionID); err != nil {
		return nil, errors.New("ChatLogic.Reject.ChatSessionStore.Delete", i18n.ERROR_INTERNAL, err)
	}

	rejected := protocol.SessionRejectedPayload{
		SessionID: sessionID,
		AgentID:   agentID,
		Message:   "session rejected",
	}
	for _, agentConn := range l.core.Hub().OnlineAgentConns() {
		agentConn.ClearWaitingPushed(sessionID)
		_ = agentConn.SendEvent(protocol.EventSessionRejected, rejected)
	}
	l.delivery.NotifyUser(session.PartyID(), protocol.EventSessionRejected, rejected)

	return &rejected, nil
}

// CancelWaiting removes the user's own waiting session. A session that is
// already gone still produces the cancel broadcast so agent queues converge.
func (l *ChatLogic) CancelWaiting(userID, sessionID string) (*protocol.SessionCancelledPayload, error) {
	cancelled := protocol.SessionCancelledPayload{
		SessionID: sessionID,
		UserID:    userID,
		Message:   "waiting cancelled",
	}

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, sessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.CancelWaiting.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventSessionCancelled, cancelled)
		return &cancelled, nil
	}

	if session.PartyID() != userID {
		return nil, errors.New("ChatLogic.CancelWaiting.OwnershipCheck", i18n.ERROR_PERMISSION_DENIED, nil).Code(403)
	}
	if session.Status != types.CHAT_SESSION_STATUS_WAITING {
		return nil, errors.New("ChatLogic.CancelWaiting.StatusCheck", i18n.ERROR_INVALID_STATE, nil).Code(400)
	}

	if err = l.core.Store().ChatSessionStore().Delete(l.ctx, sessionID); err != nil {
		return nil, errors.New("ChatLogic.CancelWaiting.ChatSessionStore.Delete", i18n.ERROR_INTERNAL, err)
	}

	for _, agentConn := range l.core.Hub().OnlineAgentConns() {
		agentConn.ClearWaitingPushed(sessionID)
	}
	if session.Assigned() {
		l.delivery.NotifyAgent(session.AgentID, protocol.EventSessionCancelled, cancelled)
	} else {
		l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventSessionCancelled, cancelled)
	}

	return &cancelled, nil
}

// SendMessage persists the message then fans it out to everyone else in the
// session room. Messages on ended sessions are allowed, they become part of
// the transcript without resurrecting the session.
func (l *ChatLogic) SendMessage(conn *hub.Conn, identity hub.Identity, req protocol.SendMessageRequest) (*protocol.MessagePayload, error) {
	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, req.SessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.SendMessage.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		return nil, errors.New("ChatLogic.SendMessage.ChatSessionStore.GetBySessionID", i18n.ERROR_SESSION_NOT_FOUND, nil).Code(404)
	}

	messageType := types.MessageType(req.MessageType)
	if messageType == "" {
		messageType = types.MESSAGE_TYPE_TEXT
	}

	message := types.ChatMessage{
		ID:          utils.GenUniqIDStr(),
		SessionID:   req.SessionID,
		SenderType:  senderTypeFor(identity.Role),
		SenderID:    identity.UserID,
		SenderName:  identity.Username,
		MessageType: messageType,
		Content:     req.Content,
		CreatedAt:   time.Now().Unix(),
	}
	if req.FileMeta != nil {
		message.FileURL = req.FileMeta.URL
		message.FileName = req.FileMeta.Name
		message.FileSize = req.FileMeta.Size
		message.FileType = req.FileMeta.Type
	}

	if err = l.core.Store().ChatMessageStore().Create(l.ctx, message); err != nil {
		return nil, errors.New("ChatLogic.SendMessage.ChatMessageStore.Create", i18n.ERROR_INTERNAL, err)
	}

	payload := messagePayload(message)
	l.core.Hub().BroadcastExcept(hub.SessionRoom(req.SessionID), conn.ID(), protocol.EventNewMessage, payload)

	return &payload, nil
}

func (l *ChatLogic) MarkRead(messageID string) (*protocol.MessageReadPayload, error) {
	message, err := l.core.Store().ChatMessageStore().GetByID(l.ctx, messageID)
	if err != nil {
		return nil, errors.New("ChatLogic.MarkRead.ChatMessageStore.GetByID", i18n.ERROR_INTERNAL, err)
	}
	if message == nil {
		return nil, errors.New("ChatLogic.MarkRead.ChatMessageStore.GetByID", i18n.ERROR_MESSAGE_NOT_FOUND, nil).Code(404)
	}

	if err = l.core.Store().ChatMessageStore().MarkRead(l.ctx, messageID); err != nil {
		return nil, errors.New("ChatLogic.MarkRead.ChatMessageStore.MarkRead", i18n.ERROR_INTERNAL, err)
	}
	return &protocol.MessageReadPayload{MessageID: messageID}, nil
}

// GetHistory pages the transcript. Storage orders newest first for cheap
// paging, the wire format is oldest first within each page.
func (l *ChatLogic) GetHistory(req protocol.GetHistoryRequest) (*protocol.HistoryPayload, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = 50
	}

	messages, err := l.core.Store().ChatMessageStore().ListBySession(l.ctx, req.SessionID, page, pageSize)
	if err != nil {
		return nil, errors.New("ChatLogic.GetHistory.ChatMessageStore.ListBySession", i18n.ERROR_INTERNAL, err)
	}

	return &protocol.HistoryPayload{
		SessionID: req.SessionID,
		Messages:  lo.Reverse(messages),
		Page:      page,
		HasMore:   uint64(len(messages)) == pageSize,
	}, nil
}

func (l *ChatLogic) UpdateStatus(agentID, status string) (*protocol.StatusUpdatedPayload, error) {
	agentStatus := types.AgentStatus(status)
	if !agentStatus.Valid() {
		return nil, errors.New("ChatLogic.UpdateStatus.StatusCheck", i18n.ERROR_INVALIDARGUMENT, nil).Code(400)
	}

	if err := l.core.Store().CustomerServiceStore().UpdateStatus(l.ctx, agentID, agentStatus); err != nil {
		return nil, errors.New("ChatLogic.UpdateStatus.CustomerServiceStore.UpdateStatus", i18n.ERROR_INTERNAL, err)
	}

	l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventAgentStatusUpdate, protocol.AgentStatusPayload{
		AgentID: agentID,
		Status:  status,
	})
	return &protocol.StatusUpdatedPayload{Status: status}, nil
}

// End closes the session. Either side of the session may end it, nobody else.
// The capacity counter only comes back when this call itself moved the session
// off active, so two racing ends release the slot once, and ending a waiting
// session never touches it.
func (l *ChatLogic) End(actorRole types.ConnectionRole, actorID, sessionID, notes string) (*protocol.SessionEndedPayload, error) {
	unlock := lockSession(sessionID)
	defer unlock()

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, sessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.End.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		return nil, errors.New("ChatLogic.End.ChatSessionStore.GetBySessionID", i18n.ERROR_SESSION_NOT_FOUND, nil).Code(404)
	}

	var owned bool
	switch actorRole {
	case types.ROLE_AGENT:
		owned = session.AgentID == actorID
	case types.ROLE_USER, types.ROLE_VISITOR:
		owned = session.PartyID() == actorID
	}
	if !owned {
		return nil, errors.New("ChatLogic.End.OwnershipCheck", i18n.ERROR_PERMISSION_DENIED, nil).Code(403)
	}

	wasActive := session.Status == types.CHAT_SESSION_STATUS_ACTIVE
	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		ended, err := l.core.Store().ChatSessionStore().EndSession(ctx, sessionID, notes)
		if err != nil {
			return errors.New("ChatLogic.End.ChatSessionStore.EndSession", i18n.ERROR_INTERNAL, err)
		}
		// A lost race means another end already transitioned the row and
		// released the slot, this call must not release it again.
		if ended && wasActive && session.Assigned() {
			if err := l.core.Store().CustomerServiceStore().DecrCurrentChats(ctx, session.AgentID); err != nil {
				return errors.New("ChatLogic.End.CustomerServiceStore.DecrCurrentChats", i18n.ERROR_INTERNAL, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ended := protocol.SessionEndedPayload{
		SessionID: sessionID,
		EndedBy:   protocol.Actor{Type: string(actorRole), ID: actorID},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	l.core.Hub().Broadcast(hub.SessionRoom(sessionID), protocol.EventSessionEnded, ended)
	if session.Assigned() {
		l.core.Hub().SendToAgent(session.AgentID, protocol.EventSessionEnded, ended)
	}
	l.core.Hub().SendToUser(session.PartyID(), protocol.EventSessionEnded, ended)

	return &ended, nil
}

// Transfer hands the session from its current agent to another online agent
// with free capacity. The reassignment and both counter moves commit together
// or not at all, and a session that ended in the meantime fails the
// reassignment instead of moving counters for a dead session.
func (l *ChatLogic) Transfer(callerID string, req protocol.TransferSessionRequest) (*protocol.SessionTransferredPayload, error) {
	unlock := lockSession(req.SessionID)
	defer unlock()

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, req.SessionID)
	if err != nil {
		return nil, errors.New("ChatLogic.Transfer.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		return nil, errors.New("ChatLogic.Transfer.ChatSessionStore.GetBySessionID", i18n.ERROR_SESSION_NOT_FOUND, nil).Code(404)
	}
	if session.AgentID != callerID {
		return nil, errors.New("ChatLogic.Transfer.OwnershipCheck", i18n.ERROR_PERMISSION_DENIED, nil).Code(403)
	}

	target, err := l.core.Store().CustomerServiceStore().Get(l.ctx, req.TargetAgentID)
	if err != nil {
		return nil, errors.New("ChatLogic.Transfer.CustomerServiceStore.Get", i18n.ERROR_INTERNAL, err)
	}
	if target == nil {
		return nil, errors.New("ChatLogic.Transfer.CustomerServiceStore.Get", i18n.ERROR_AGENT_NOT_FOUND, nil).Code(404)
	}
	if target.Status != types.AGENT_STATUS_ONLINE {
		return nil, errors.New("ChatLogic.Transfer.AvailabilityCheck", i18n.ERROR_AGENT_NOT_AVAILABLE, nil).Code(409)
	}
	if target.AtCapacity() {
		return nil, errors.New("ChatLogic.Transfer.CapacityCheck", i18n.ERROR_CAPACITY_EXCEEDED, nil).Code(409)
	}

	wasActive := session.Status == types.CHAT_SESSION_STATUS_ACTIVE
	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().ChatSessionStore().ReassignAgent(ctx, req.SessionID, callerID, target.ID, req.Reason); err != nil {
			return errors.New("ChatLogic.Transfer.ChatSessionStore.ReassignAgent", i18n.ERROR_INTERNAL, err)
		}
		if wasActive {
			if err := l.core.Store().CustomerServiceStore().DecrCurrentChats(ctx, callerID); err != nil {
				return errors.New("ChatLogic.Transfer.CustomerServiceStore.DecrCurrentChats", i18n.ERROR_INTERNAL, err)
			}
			ok, err := l.core.Store().CustomerServiceStore().IncrCurrentChats(ctx, target.ID)
			if err != nil {
				return errors.New("ChatLogic.Transfer.CustomerServiceStore.IncrCurrentChats", i18n.ERROR_INTERNAL, err)
			}
			if !ok {
				return errors.New("ChatLogic.Transfer.CustomerServiceStore.IncrCurrentChats", i18n.ERROR_CAPACITY_EXCEEDED, nil).Code(409)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transferred := protocol.SessionTransferredPayload{
		SessionID: req.SessionID,
		FromAgent: callerID,
		ToAgent:   target.ID,
		Reason:    req.Reason,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	l.core.Hub().Broadcast(hub.SessionRoom(req.SessionID), protocol.EventSessionTransferred, transferred)
	l.delivery.NotifyAgent(target.ID, protocol.EventSessionTransferred, transferred)

	return &transferred, nil
}

// Statistics summarizes the agent's workload.
func (l *ChatLogic) Statistics(agentID string) (*protocol.ChatStatisticsPayload, error) {
	sessions := l.core.Store().ChatSessionStore()

	total, err := sessions.Total(l.ctx, types.ListChatSessionOptions{AgentID: agentID})
	if err != nil {
		return nil, errors.New("ChatLogic.Statistics.ChatSessionStore.Total", i18n.ERROR_INTERNAL, err)
	}
	active, err := sessions.Total(l.ctx, types.ListChatSessionOptions{AgentID: agentID, Status: types.CHAT_SESSION_STATUS_ACTIVE})
	if err != nil {
		return nil, errors.New("ChatLogic.Statistics.ChatSessionStore.Total", i18n.ERROR_INTERNAL, err)
	}
	endedTotal, err := sessions.Total(l.ctx, types.ListChatSessionOptions{AgentID: agentID, Status: types.CHAT_SESSION_STATUS_ENDED})
	if err != nil {
		return nil, errors.New("ChatLogic.Statistics.ChatSessionStore.Total", i18n.ERROR_INTERNAL, err)
	}

	messages, err := l.core.Store().ChatMessageStore().TotalBySender(l.ctx, types.SENDER_TYPE_AGENT, agentID, 0)
	if err != nil {
		return nil, errors.New("ChatLogic.Statistics.ChatMessageStore.TotalBySender", i18n.ERROR_INTERNAL, err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := sessions.Total(l.ctx, types.ListChatSessionOptions{AgentID: agentID, CreatedAfter: midnight.Unix()})
	if err != nil {
		return nil, errors.New("ChatLogic.Statistics.ChatSessionStore.Total", i18n.ERROR_INTERNAL, err)
	}

	return &protocol.ChatStatisticsPayload{
		TotalSessions:  total,
		ActiveSessions: active,
		EndedSessions:  endedTotal,
		TotalMessages:  messages,
		TodaySessions:  today,
	}, nil
}

func (l *ChatLogic) buildWaitingPayload(session types.ChatSession) protocol.WaitingUserPayload {
	payload := protocol.WaitingUserPayload{
		SessionID: session.SessionID,
		UserID:    session.PartyID(),
		AgentID:   session.AgentID,
		Username:  session.PartyID(),
		Priority:  string(session.Priority),
		Timestamp: time.Unix(session.CreatedAt, 0).Format(time.RFC3339),
	}
	if session.VisitorName != "" {
		payload.Username = session.VisitorName
		payload.Email = session.VisitorEmail
	}
	if session.UserID != "" {
		if user, err := l.core.Store().UserStore().GetUser(l.ctx, session.UserID); err == nil && user != nil {
			payload.Username = user.Username
			payload.Email = user.Email
			payload.Avatar = user.Avatar
		}
	}
	return payload
}

func messagePayload(message types.ChatMessage) protocol.MessagePayload {
	payload := protocol.MessagePayload{
		ID:          message.ID,
		SessionID:   message.SessionID,
		SenderType:  string(message.SenderType),
		SenderID:    message.SenderID,
		SenderName:  message.SenderName,
		MessageType: string(message.MessageType),
		Content:     message.Content,
		Timestamp:   time.Unix(message.CreatedAt, 0).Format(time.RFC3339),
	}
	if message.FileURL != "" {
		payload.FileMeta = &types.FileMeta{
			URL:  message.FileURL,
			Name: message.FileName,
			Size: message.FileSize,
			Type: message.FileType,
		}
	}
	return payload
}

func senderTypeFor(role types.ConnectionRole) types.SenderType {
	switch role {
	case types.ROLE_AGENT:
		return types.SENDER_TYPE_AGENT
	case types.ROLE_VISITOR:
		return types.SENDER_TYPE_VISITOR
	default:
		return types.SENDER_TYPE_USER
	}
}
