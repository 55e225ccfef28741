package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chatdesk/chatdesk/app/core"
	v1 "github.com/chatdesk/chatdesk/app/logic/v1"
	"github.com/chatdesk/chatdesk/app/response"
	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/safe"
	"github.com/chatdesk/chatdesk/pkg/socket/hub"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Websocket upgrades the request and runs the connection's read loop until
// the socket dies. Identity is established over the socket itself through the
// login events, so the route carries no auth middleware.
func Websocket(appCore *core.Core) func(c *gin.Context) {
	localizer := i18n.NewLocalizer(i18n.DEFAULT_LANG)

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", slog.String("error", err.Error()))
			response.APIError(c, errors.New("api.Websocket.Upgrade", i18n.ERROR_INTERNAL, err))
			return
		}

		// The request context dies with the HTTP handshake, the connection
		// outlives it.
		ctx := context.Background()

		conn := appCore.Hub().Register(utils.GenRandomID(), ws)
		connection := v1.NewConnectionLogic(ctx, appCore)
		defer func() {
			connection.OnDisconnect(conn)
			appCore.Hub().Unregister(conn)
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				slog.Debug("websocket read closed", slog.String("conn_id", conn.ID()), slog.String("error", err.Error()))
				return
			}

			env, err := protocol.ParseEnvelope(raw)
			if err != nil {
				sendError(conn, localizer, "", errors.New("api.Websocket.ParseEnvelope", i18n.ERROR_INVALIDARGUMENT, err).Code(http.StatusBadRequest))
				continue
			}

			appCore.Metrics().SocketEventInc(env.Event)
			safe.RunWithLog(func() {
				dispatch(ctx, appCore, connection, conn, localizer, env)
			}, "handler.Websocket.dispatch")
		}
	}
}

func dispatch(ctx context.Context, appCore *core.Core, connection *v1.ConnectionLogic, conn *hub.Conn, localizer i18n.Localizer, env *protocol.Envelope) {
	chat := v1.NewChatLogic(ctx, appCore)

	switch env.Event {
	case protocol.EventPing:
		_ = conn.SendEvent(protocol.EventPong, protocol.PongPayload{Timestamp: time.Now().Unix(), Original: env.Data})

	case protocol.EventLogin:
		var req protocol.LoginRequest
		if err := env.Bind(&req); err != nil {
			_ = conn.SendEvent(protocol.EventUserLoginError, protocol.ErrorPayload{Message: err.Error()})
			return
		}
		res, err := connection.LoginUser(conn, req.Token)
		if err != nil {
			_ = conn.SendEvent(protocol.EventUserLoginError, protocol.ErrorPayload{Message: localize(localizer, err)})
			return
		}
		_ = conn.SendEvent(protocol.EventUserLoginSuccess, res)

	case protocol.EventUserConnect:
		var req protocol.UserConnectRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := connection.Connect(conn, req)
		if err != nil {
			sendError(conn, localizer, req.SessionID, err)
			return
		}
		_ = conn.SendEvent(protocol.EventConnectSuccess, res)

	case protocol.EventAgentLogin:
		var req protocol.LoginRequest
		if err := env.Bind(&req); err != nil {
			_ = conn.SendEvent(protocol.EventLoginError, protocol.ErrorPayload{Message: err.Error()})
			return
		}
		res, err := connection.LoginAgent(conn, req.Token)
		if err != nil {
			_ = conn.SendEvent(protocol.EventLoginError, protocol.ErrorPayload{Message: localize(localizer, err)})
			return
		}
		_ = conn.SendEvent(protocol.EventLoginSuccess, res)

	case protocol.EventJoinSession:
		if _, ok := requireIdentity(conn, localizer); !ok {
			return
		}
		var req protocol.JoinSessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		appCore.Hub().JoinRoom(hub.SessionRoom(req.SessionID), conn)
		_ = conn.SendEvent(protocol.EventSessionJoined, protocol.SessionJoinedPayload{SessionID: req.SessionID})

	case protocol.EventStartChat:
		identity, ok := requireRole(conn, localizer, types.ROLE_USER, types.ROLE_VISITOR)
		if !ok {
			return
		}
		var req protocol.StartChatRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.StartChat(conn, identity.UserID, req)
		if err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		_ = conn.SendEvent(protocol.EventSessionStarted, res)

	case protocol.EventAcceptSession:
		identity, ok := requireRole(conn, localizer, types.ROLE_AGENT)
		if !ok {
			return
		}
		var req protocol.SessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		if _, err := chat.Accept(conn, identity.UserID, req.SessionID); err != nil {
			sendError(conn, localizer, req.SessionID, err)
		}

	case protocol.EventRejectSession:
		identity, ok := requireRole(conn, localizer, types.ROLE_AGENT)
		if !ok {
			return
		}
		var req protocol.SessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		if _, err := chat.Reject(identity.UserID, req.SessionID); err != nil {
			sendError(conn, localizer, req.SessionID, err)
		}

	case protocol.EventCancelWaiting:
		identity, ok := requireRole(conn, localizer, types.ROLE_USER, types.ROLE_VISITOR)
		if !ok {
			return
		}
		var req protocol.SessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.CancelWaiting(identity.UserID, req.SessionID)
		if err != nil {
			sendError(conn, localizer, req.SessionID, err)
			return
		}
		_ = conn.SendEvent(protocol.EventCancelWaitingSuccess, res)

	case protocol.EventEndSession:
		identity, ok := requireIdentity(conn, localizer)
		if !ok {
			return
		}
		var req protocol.EndSessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		if _, err := chat.End(identity.Role, identity.UserID, req.SessionID, req.Notes); err != nil {
			sendError(conn, localizer, req.SessionID, err)
		}

	case protocol.EventTransferSession:
		identity, ok := requireRole(conn, localizer, types.ROLE_AGENT)
		if !ok {
			return
		}
		var req protocol.TransferSessionRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.Transfer(identity.UserID, req)
		if err != nil {
			sendError(conn, localizer, req.SessionID, err)
			return
		}
		_ = conn.SendEvent(protocol.EventSessionTransferred, res)

	case protocol.EventSendMessage:
		identity, ok := requireIdentity(conn, localizer)
		if !ok {
			return
		}
		var req protocol.SendMessageRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		if _, err := chat.SendMessage(conn, identity, req); err != nil {
			sendError(conn, localizer, req.SessionID, err)
		}

	case protocol.EventMarkRead:
		if _, ok := requireIdentity(conn, localizer); !ok {
			return
		}
		var req protocol.MarkReadRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.MarkRead(req.MessageID)
		if err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		_ = conn.SendEvent(protocol.EventMessageRead, res)

	case protocol.EventGetHistory:
		if _, ok := requireIdentity(conn, localizer); !ok {
			return
		}
		var req protocol.GetHistoryRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.GetHistory(req)
		if err != nil {
			sendError(conn, localizer, req.SessionID, err)
			return
		}
		_ = conn.SendEvent(protocol.EventHistoryMessages, res)

	case protocol.EventUpdateStatus:
		identity, ok := requireRole(conn, localizer, types.ROLE_AGENT)
		if !ok {
			return
		}
		var req protocol.UpdateStatusRequest
		if err := env.Bind(&req); err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		res, err := chat.UpdateStatus(identity.UserID, req.Status)
		if err != nil {
			sendError(conn, localizer, "", err)
			return
		}
		_ = conn.SendEvent(protocol.EventStatusUpdated, res)

	default:
		sendError(conn, localizer, "", errors.New("api.Websocket.dispatch", i18n.ERROR_INVALIDARGUMENT, nil).Code(http.StatusBadRequest))
	}
}

func requireIdentity(conn *hub.Conn, localizer i18n.Localizer) (hub.Identity, bool) {
	identity, ok := conn.Identity()
	if !ok {
		sendError(conn, localizer, "", errors.New("api.Websocket.requireIdentity", i18n.ERROR_UNAUTHORIZED, nil).Code(http.StatusUnauthorized))
	}
	return identity, ok
}

func requireRole(conn *hub.Conn, localizer i18n.Localizer, roles ...types.ConnectionRole) (hub.Identity, bool) {
	identity, ok := requireIdentity(conn, localizer)
	if !ok {
		return identity, false
	}
	for _, role := range roles {
		if identity.Role == role {
			return identity, true
		}
	}

	key := i18n.ERROR_PERMISSION_DENIED
	if roles[0] == types.ROLE_AGENT {
		key = i18n.ERROR_AGENT_ROLE_REQUIRED
	} else if roles[0] == types.ROLE_USER {
		key = i18n.ERROR_USER_ROLE_REQUIRED
	}
	sendError(conn, localizer, "", errors.New("api.Websocket.requireRole", key, nil).Code(http.StatusForbidden))
	return identity, false
}

func sendError(conn *hub.Conn, localizer i18n.Localizer, sessionID string, err error) {
	_ = conn.SendEvent(protocol.EventError, protocol.ErrorPayload{
		Message:   localize(localizer, err),
		SessionID: sessionID,
	})
}

func localize(localizer i18n.Localizer, err error) string {
	if ce, ok := err.(*errors.CustomizedError); ok {
		return localizer.Get(i18n.DEFAULT_LANG, ce.Message())
	}
	return err.Error()
}
