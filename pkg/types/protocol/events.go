package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/chatdesk/chatdesk/pkg/types"
)

// Envelope is the wire frame for both directions:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope missing event name")
	}
	return &env, nil
}

// Bind decodes the envelope payload into the event's typed struct.
func (e *Envelope) Bind(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s missing payload", e.Event)
	}
	return json.Unmarshal(e.Data, dst)
}

// Inbound event names.
const (
	EventPing            = "ping"
	EventLogin           = "login"
	EventAgentLogin      = "agent_login"
	EventUserConnect     = "user_connect"
	EventJoinSession     = "join_session"
	EventStartChat       = "start_chat"
	EventAcceptSession   = "accept_session"
	EventRejectSession   = "reject_session"
	EventCancelWaiting   = "cancel_waiting"
	EventEndSession      = "end_session"
	EventTransferSession = "transfer_session"
	EventSendMessage     = "send_message"
	EventMarkRead        = "mark_read"
	EventGetHistory      = "get_history"
	EventUpdateStatus    = "update_status"
)

// Outbound event names.
const (
	EventPong                 = "pong"
	EventError                = "error"
	EventSessionJoined        = "session_joined"
	EventCancelWaitingSuccess = "cancel_waiting_success"
	EventNewSession           = "new_session"
	EventSessionTransferred   = "session_transferred"
	EventUserLoginSuccess     = "user_login_success"
	EventUserLoginError       = "user_login_error"
	EventConnectSuccess       = "connect_success"
	EventUserConnected        = "user_connected"
	EventLoginSuccess         = "login_success"
	EventLoginError           = "login_error"
	EventSessionStarted       = "session_started"
	EventSessionReconnected   = "session_reconnected"
	EventNewWaitingUser       = "new_waiting_user"
	EventSessionAccepted      = "session_accepted"
	EventSessionRejected      = "session_rejected"
	EventSessionCancelled     = "session_cancelled"
	EventSessionTaken         = "session_taken"
	EventSessionEnded         = "session_ended"
	EventNewMessage           = "new_message"
	EventHistoryMessages      = "history_messages"
	EventMessageRead          = "message_read"
	EventAgentOnline          = "customer_service_online"
	EventAgentOffline         = "customer_service_offline"
	EventUserOnline           = "user_online"
	EventUserDisconnected     = "user_disconnected"
	EventAgentStatusUpdate    = "agent_status_update"
	EventStatusUpdated        = "status_updated"
)

type LoginRequest struct {
	Token string `json:"token"`
}

type JoinSessionRequest struct {
	SessionID string `json:"session_id"`
}

// UserConnectRequest is the tokenless handshake for anonymous visitors (and
// users that identify by id only). Either user_id or visitor_id names the
// customer side of the session.
type UserConnectRequest struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	VisitorID    string `json:"visitor_id,omitempty"`
	VisitorName  string `json:"visitor_name,omitempty"`
	VisitorEmail string `json:"visitor_email,omitempty"`
}

type StartChatRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"customer_service_id,omitempty"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type EndSessionRequest struct {
	SessionID string `json:"session_id"`
	Notes     string `json:"notes,omitempty"`
}

type TransferSessionRequest struct {
	SessionID     string `json:"session_id"`
	TargetAgentID string `json:"target_customer_service_id"`
	Reason        string `json:"reason,omitempty"`
}

type SendMessageRequest struct {
	SessionID   string          `json:"session_id"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type,omitempty"`
	FileMeta    *types.FileMeta `json:"file_meta,omitempty"`
}

type MarkReadRequest struct {
	MessageID string `json:"message_id"`
}

type GetHistoryRequest struct {
	SessionID string `json:"session_id"`
	Page      uint64 `json:"page"`
	PageSize  uint64 `json:"page_size"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type SessionStartedPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"customer_service_id,omitempty"`
	Message   string `json:"message"`
}

type SessionReconnectedPayload struct {
	SessionID      string              `json:"session_id"`
	Status         string              `json:"status"`
	UserID         string              `json:"user_id"`
	RecentMessages []types.ChatMessage `json:"recent_messages"`
}

type WaitingUserPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"customer_service_id,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Priority  string `json:"priority"`
	Timestamp string `json:"timestamp"`
}

type SessionAcceptedPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"customer_service_id"`
	AgentName string `json:"customer_service_name"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type SessionTakenPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"customer_service_id"`
}

type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	EndedBy   Actor  `json:"ended_by"`
	Timestamp string `json:"timestamp"`
}

type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type MessagePayload struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	SenderType  string          `json:"sender_type"`
	SenderID    string          `json:"sender_id,omitempty"`
	SenderName  string          `json:"sender_name"`
	MessageType string          `json:"message_type"`
	Content     string          `json:"content"`
	FileMeta    *types.FileMeta `json:"file_meta,omitempty"`
	Timestamp   string          `json:"timestamp"`
}

type HistoryPayload struct {
	SessionID string              `json:"session_id"`
	Messages  []types.ChatMessage `json:"messages"`
	Page      uint64              `json:"page"`
	HasMore   bool                `json:"has_more"`
}

type AgentPresencePayload struct {
	AgentID  string `json:"customer_service_id"`
	Username string `json:"username"`
}

type UserPresencePayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type AgentStatusPayload struct {
	AgentID string `json:"customer_service_id"`
	Status  string `json:"status"`
}

type PongPayload struct {
	Timestamp int64           `json:"timestamp"`
	Original  json.RawMessage `json:"original,omitempty"`
}

type SessionJoinedPayload struct {
	SessionID string `json:"session_id"`
}

type ConnectSuccessPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	UserID    string `json:"user_id,omitempty"`
	VisitorID string `json:"visitor_id,omitempty"`
}

type UserConnectedPayload struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id,omitempty"`
	VisitorID   string `json:"visitor_id,omitempty"`
	VisitorName string `json:"visitor_name,omitempty"`
}

type UserLoginSuccessPayload struct {
	Message          string `json:"message"`
	UserID           string `json:"user_id"`
	HasActiveSession bool   `json:"has_active_session"`
}

type AgentLoginSuccessPayload struct {
	Message string                 `json:"message"`
	AgentID string                 `json:"customer_service_id"`
	Agent   *types.CustomerService `json:"customer_service,omitempty"`
}

type SessionRejectedPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"customer_service_id,omitempty"`
	Message   string `json:"message"`
}

type SessionCancelledPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

type MessageReadPayload struct {
	MessageID string `json:"message_id"`
}

type StatusUpdatedPayload struct {
	Status string `json:"status"`
}

type SessionTransferredPayload struct {
	SessionID string `json:"session_id"`
	FromAgent string `json:"from_customer_service_id"`
	ToAgent   string `json:"to_customer_service_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

type ChatStatisticsPayload struct {
	TotalSessions  int64 `json:"total_sessions"`
	ActiveSessions int64 `json:"active_sessions"`
	EndedSessions  int64 `json:"ended_sessions"`
	TotalMessages  int64 `json:"total_messages"`
	TodaySessions  int64 `json:"today_sessions"`
}
