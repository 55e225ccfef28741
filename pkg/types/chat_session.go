package types

import (
	sq "github.com/Masterminds/squirrel"
)

type ChatSession struct {
	ID           int64             `json:"id" db:"id"`
	SessionID    string            `json:"session_id" db:"session_id"`
	UserID       string            `json:"user_id" db:"user_id"`
	VisitorID    string            `json:"visitor_id" db:"visitor_id"`
	VisitorName  string            `json:"visitor_name" db:"visitor_name"`
	VisitorEmail string            `json:"visitor_email" db:"visitor_email"`
	AgentID      string            `json:"customer_service_id" db:"customer_service_id"`
	Status       ChatSessionStatus `json:"status" db:"status"`
	Priority     SessionPriority   `json:"priority" db:"priority"`
	Notes        string            `json:"notes" db:"notes"`
	CreatedAt    int64             `json:"created_at" db:"created_at"`
	StartedAt    int64             `json:"started_at" db:"started_at"`
	EndedAt      int64             `json:"ended_at" db:"ended_at"`
	UpdatedAt    int64             `json:"updated_at" db:"updated_at"`
}

type ChatSessionStatus string

const (
	CHAT_SESSION_STATUS_WAITING     ChatSessionStatus = "waiting"
	CHAT_SESSION_STATUS_ACTIVE      ChatSessionStatus = "active"
	CHAT_SESSION_STATUS_ENDED       ChatSessionStatus = "ended"
	CHAT_SESSION_STATUS_TRANSFERRED ChatSessionStatus = "transferred"
)

type SessionPriority string

const (
	SESSION_PRIORITY_LOW    SessionPriority = "low"
	SESSION_PRIORITY_NORMAL SessionPriority = "normal"
	SESSION_PRIORITY_HIGH   SessionPriority = "high"
	SESSION_PRIORITY_URGENT SessionPriority = "urgent"
)

// Assigned reports whether the session has been claimed by an agent.
func (s *ChatSession) Assigned() bool {
	return s.AgentID != ""
}

// PartyID is the id of the customer side of the session: the user id for
// logged-in users, the visitor id for anonymous visitors.
func (s *ChatSession) PartyID() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.VisitorID
}

type ListChatSessionOptions struct {
	UserID       string
	AgentID      string
	Status       ChatSessionStatus
	Statuses     []ChatSessionStatus
	CreatedAfter int64
}

func (opts ListChatSessionOptions) Apply(query *sq.SelectBuilder) {
	if opts.UserID != "" {
		*query = query.Where(sq.Eq{"user_id": opts.UserID})
	}
	if opts.AgentID != "" {
		*query = query.Where(sq.Eq{"customer_service_id": opts.AgentID})
	}
	if opts.Status != "" {
		*query = query.Where(sq.Eq{"status": opts.Status})
	}
	if len(opts.Statuses) > 0 {
		*query = query.Where(sq.Eq{"status": opts.Statuses})
	}
	if opts.CreatedAfter > 0 {
		*query = query.Where(sq.GtOrEq{"created_at": opts.CreatedAfter})
	}
}
