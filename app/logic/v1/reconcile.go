package v1

import (
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/chatdesk/chatdesk/pkg/safe"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

// startWaitingReconciler catches up the agent connection with waiting sessions
// whose new_waiting_user event was lost, either because the agent was offline
// when the session was created or because the frame never arrived. One push
// right after login, then a periodic sweep until the connection dies. The
// per-connection dedup set keeps the sweep from repeating itself.
func (l *ConnectionLogic) startWaitingReconciler(conn *hub.Conn, agentID string) {
	l.pushWaitingSessions(conn, agentID)

	interval := time.Duration(l.core.Cfg().Chat.WaitingPushIntervalSeconds) * time.Second
	go safe.Run(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.pushWaitingSessions(conn, agentID)
			case <-conn.Closed():
				return
			}
		}
	})
}

func (l *ConnectionLogic) pushWaitingSessions(conn *hub.Conn, agentID string) {
	sessions, err := l.core.Store().ChatSessionStore().ListWaitingByAgent(l.ctx, agentID, l.core.Cfg().Chat.WaitingPushLimit)
	if err != nil {
		slog.Error("list waiting sessions failed", slog.String("customer_service_id", agentID), slog.Any("error", err))
		return
	}
	if len(sessions) == 0 {
		return
	}

	// One batched profile fetch for the whole sweep. Visitor sessions have no
	// profile row, their names ride on the session itself.
	userIDs := lo.Uniq(lo.FilterMap(sessions, func(s types.ChatSession, _ int) (string, bool) {
		return s.UserID, s.UserID != ""
	}))
	users, err := l.core.Store().UserStore().ListUsers(l.ctx, userIDs)
	if err != nil {
		slog.Error("list users for waiting push failed", slog.String("customer_service_id", agentID), slog.Any("error", err))
		return
	}
	profile := lo.KeyBy(users, func(u types.User) string { return u.ID })

	for _, session := range sessions {
		if !conn.MarkWaitingPushed(session.SessionID) {
			continue
		}

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
		if user, ok := profile[session.UserID]; ok {
			payload.Username = user.Username
			payload.Email = user.Email
			payload.Avatar = user.Avatar
		}

		if err = conn.SendEvent(protocol.EventNewWaitingUser, payload); err != nil {
			// Undo the mark so the next sweep retries this session.
			conn.ClearWaitingPushed(session.SessionID)
			return
		}
	}
}
