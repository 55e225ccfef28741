package v1

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/chatdesk/chatdesk/app/core"
	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/security"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

// ConnectionLogic owns the identify handshake and the disconnect side effects
// of a websocket connection.
type ConnectionLogic struct {
	ctx      context.Context
	core     *core.Core
	delivery *DeliveryLogic
}

func NewConnectionLogic(ctx context.Context, core *core.Core) *ConnectionLogic {
	return &ConnectionLogic{
		ctx:      ctx,
		core:     core,
		delivery: NewDeliveryLogic(ctx, core),
	}
}

// LoginUser binds a user identity to the connection, restores the latest
// unfinished session if one exists and replays the offline backlog.
func (l *ConnectionLogic) LoginUser(conn *hub.Conn, token string) (*protocol.UserLoginSuccessPayload, error) {
	claims, err := security.VerifyToken(token, []byte(l.core.Cfg().Security.JWTSecret))
	if err != nil {
		return nil, errors.New("ConnectionLogic.LoginUser.VerifyToken", i18n.ERROR_INVALID_TOKEN, err).Code(401)
	}

	userID := claims.GetUser()
	conn.SetIdentity(hub.Identity{
		UserID:   userID,
		Username: claims.Username,
		Role:     types.ROLE_USER,
	})
	l.core.Hub().JoinRoom(hub.UserRoom(userID), conn)
	l.core.Hub().JoinRoom(hub.RoomUsers, conn)
	l.core.Metrics().ConnectionOpened(string(types.ROLE_USER))

	session, err := l.core.Store().ChatSessionStore().GetLatestUnfinishedByUser(l.ctx, userID)
	if err != nil {
		return nil, errors.New("ConnectionLogic.LoginUser.ChatSessionStore.GetLatestUnfinishedByUser", i18n.ERROR_INTERNAL, err)
	}
	if session != nil {
		l.core.Hub().JoinRoom(hub.SessionRoom(session.SessionID), conn)

		recent, err := l.core.Store().ChatMessageStore().ListBySession(l.ctx, session.SessionID, 1, l.core.Cfg().Chat.ReconnectHistoryLimit)
		if err != nil {
			return nil, errors.New("ConnectionLogic.LoginUser.ChatMessageStore.ListBySession", i18n.ERROR_INTERNAL, err)
		}
		if err = conn.SendEvent(protocol.EventSessionReconnected, protocol.SessionReconnectedPayload{
			SessionID:      session.SessionID,
			Status:         string(session.Status),
			UserID:         session.UserID,
			RecentMessages: lo.Reverse(recent),
		}); err != nil {
			slog.Warn("session reconnect push failed", slog.String("session_id", session.SessionID), slog.Any("error", err))
		}
	}

	// Presence is live only. An offline agent does not need to learn later
	// that a user was briefly online.
	l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventUserOnline, protocol.UserPresencePayload{
		UserID:    userID,
		Username:  claims.Username,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	if err = l.delivery.ReplayBacklog(conn, types.NOTIFY_TARGET_USER, userID); err != nil {
		slog.Error("user backlog replay failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return &protocol.UserLoginSuccessPayload{
		Message:          "login success",
		UserID:           userID,
		HasActiveSession: session != nil,
	}, nil
}

// Connect binds a visitor (or a user identified by id only) to a session
// without a token. The session is created on first contact, carrying the
// visitor profile, and the assigned agent or the whole agent pool is told the
// customer is there.
func (l *ConnectionLogic) Connect(conn *hub.Conn, req protocol.UserConnectRequest) (*protocol.ConnectSuccessPayload, error) {
	if req.SessionID == "" {
		return nil, errors.New("ConnectionLogic.Connect.SessionIDCheck", i18n.ERROR_INVALIDARGUMENT, nil).Code(400)
	}
	if req.UserID == "" && req.VisitorID == "" {
		req.VisitorID = utils.GenRandomID()
	}

	session, err := l.core.Store().ChatSessionStore().GetBySessionID(l.ctx, req.SessionID)
	if err != nil {
		return nil, errors.New("ConnectionLogic.Connect.ChatSessionStore.GetBySessionID", i18n.ERROR_INTERNAL, err)
	}
	if session == nil {
		session = &types.ChatSession{
			SessionID:    req.SessionID,
			UserID:       req.UserID,
			VisitorID:    req.VisitorID,
			VisitorName:  req.VisitorName,
			VisitorEmail: req.VisitorEmail,
			Status:       types.CHAT_SESSION_STATUS_WAITING,
			Priority:     types.SESSION_PRIORITY_NORMAL,
			CreatedAt:    time.Now().Unix(),
		}
		if err = l.core.Store().ChatSessionStore().Create(l.ctx, *session); err != nil {
			return nil, errors.New("ConnectionLogic.Connect.ChatSessionStore.Create", i18n.ERROR_INTERNAL, err)
		}
	}

	partyID := req.UserID
	role := types.ROLE_USER
	if partyID == "" {
		partyID = req.VisitorID
		role = types.ROLE_VISITOR
	}
	name := req.VisitorName
	if name == "" {
		name = partyID
	}

	conn.SetIdentity(hub.Identity{
		UserID:   partyID,
		Username: name,
		Role:     role,
	})
	l.core.Hub().JoinRoom(hub.UserRoom(partyID), conn)
	l.core.Hub().JoinRoom(hub.RoomUsers, conn)
	l.core.Hub().JoinRoom(hub.SessionRoom(req.SessionID), conn)
	l.core.Metrics().ConnectionOpened(string(role))

	if session.Assigned() {
		l.core.Hub().SendToAgent(session.AgentID, protocol.EventUserConnected, protocol.UserConnectedPayload{
			SessionID:   req.SessionID,
			UserID:      req.UserID,
			VisitorID:   req.VisitorID,
			VisitorName: req.VisitorName,
		})
	} else if session.Status == types.CHAT_SESSION_STATUS_WAITING {
		l.core.Hub().Broadcast(hub.RoomAgents, protocol.EventNewWaitingUser, protocol.WaitingUserPayload{
			SessionID: session.SessionID,
			UserID:    partyID,
			Username:  name,
			Email:     req.VisitorEmail,
			Priority:  string(session.Priority),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}

	if err = l.delivery.ReplayBacklog(conn, types.NOTIFY_TARGET_USER, partyID); err != nil {
		slog.Error("visitor backlog replay failed", slog.String("visitor_id", partyID), slog.Any("error", err))
	}

	return &protocol.ConnectSuccessPayload{
		Message:   "connect success",
		SessionID: req.SessionID,
		Status:    string(session.Status),
		UserID:    req.UserID,
		VisitorID: req.VisitorID,
	}, nil
}

// LoginAgent binds an agent identity, flips the agent online, announces the
// presence change, replays the backlog and starts the waiting-queue
// reconciler for this connection.
func (l *ConnectionLogic) LoginAgent(conn *hub.Conn, token string) (*protocol.AgentLoginSuccessPayload, error) {
	claims, err := security.VerifyToken(token, []byte(l.core.Cfg().Security.JWTSecret))
	if err != nil {
		return nil, errors.New("ConnectionLogic.LoginAgent.VerifyToken", i18n.ERROR_INVALID_TOKEN, err).Code(401)
	}
	if !claims.IsAgent() {
		return nil, errors.New("ConnectionLogic.LoginAgent.RoleCheck", i18n.ERROR_AGENT_ROLE_REQUIRED, nil).Code(403)
	}

	agentID := claims.GetUser()
	agent, err := l.core.Store().CustomerServiceStore().Get(l.ctx, agentID)
	if err != nil {
		return nil, errors.New("ConnectionLogic.LoginAgent.CustomerServiceStore.Get", i18n.ERROR_INTERNAL, err)
	}
	if agent == nil {
		return nil, errors.New("ConnectionLogic.LoginAgent.CustomerServiceStore.Get", i18n.ERROR_AGENT_NOT_FOUND, nil).Code(404)
	}

	if err = l.core.Store().CustomerServiceStore().UpdateStatus(l.ctx, agentID, types.AGENT_STATUS_ONLINE); err != nil {
		return nil, errors.New("ConnectionLogic.LoginAgent.CustomerServiceStore.UpdateStatus", i18n.ERROR_INTERNAL, err)
	}
	agent.Status = types.AGENT_STATUS_ONLINE

	conn.SetIdentity(hub.Identity{
		UserID:   agentID,
		Username: agent.Username,
		Role:     types.ROLE_AGENT,
	})
	l.core.Hub().JoinRoom(hub.AgentRoom(agentID), conn)
	l.core.Hub().JoinRoom(hub.RoomAgents, conn)
	l.core.Metrics().ConnectionOpened(string(types.ROLE_AGENT))

	l.announceAgentPresence(conn, protocol.EventAgentOnline, protocol.AgentPresencePayload{
		AgentID:  agentID,
		Username: agent.Username,
	})

	if err = l.delivery.ReplayBacklog(conn, types.NOTIFY_TARGET_AGENT, agentID); err != nil {
		slog.Error("agent backlog replay failed", slog.String("customer_service_id", agentID), slog.Any("error", err))
	}

	l.startWaitingReconciler(conn, agentID)

	return &protocol.AgentLoginSuccessPayload{
		Message: "login success",
		AgentID: agentID,
		Agent:   agent,
	}, nil
}

// announceAgentPresence tells the other live agents right away and every known
// user through the outbox, so users learn about agent availability even when
// they were offline at the time.
func (l *ConnectionLogic) announceAgentPresence(conn *hub.Conn, event string, presence protocol.AgentPresencePayload) {
	l.core.Hub().BroadcastExcept(hub.RoomAgents, conn.ID(), event, presence)

	userIDs, err := l.core.Store().UserStore().ListIDs(l.ctx)
	if err != nil {
		slog.Error("list users for presence fan-out failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, userID := range userIDs {
		l.delivery.NotifyUser(userID, event, presence)
	}
}

// OnDisconnect runs the disconnect side effects exactly once per connection,
// whoever loses the socket first.
func (l *ConnectionLogic) OnDisconnect(conn *hub.Conn) {
	if !conn.BeginTeardown() {
		return
	}

	identity, ok := conn.Identity()
	if !ok {
		return
	}
	l.core.Metrics().ConnectionClosed(string(identity.Role))

	presence := protocol.UserPresencePayload{
		UserID:    identity.UserID,
		Username:  identity.Username,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, room := range l.core.Hub().RoomsOf(conn) {
		if strings.HasPrefix(room, hub.SessionRoom("")) {
			l.core.Hub().BroadcastExcept(room, conn.ID(), protocol.EventUserDisconnected, presence)
		}
	}

	if identity.Role != types.ROLE_AGENT {
		return
	}
	// Another live connection of the same agent keeps the presence alive.
	if l.core.Hub().RoomSize(hub.AgentRoom(identity.UserID)) > 1 {
		return
	}

	if err := l.core.Store().CustomerServiceStore().UpdateStatus(l.ctx, identity.UserID, types.AGENT_STATUS_OFFLINE); err != nil {
		slog.Error("flip agent offline failed", slog.String("customer_service_id", identity.UserID), slog.Any("error", err))
	}
	l.announceAgentPresence(conn, protocol.EventAgentOffline, protocol.AgentPresencePayload{
		AgentID:  identity.UserID,
		Username: identity.Username,
	})
}
